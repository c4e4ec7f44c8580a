// Command harvester extracts encrypted messenger conversations and
// classifies agent session-history transcripts against a project's
// entities.
package main

import "github.com/harvester-dev/harvester/cmd/harvester/cli"

func main() {
	cli.Run()
}
