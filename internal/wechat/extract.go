package wechat

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harvester-dev/harvester/internal/harvestererr"
	"github.com/harvester-dev/harvester/internal/model"
)

// Contact is one row of the contact table (spec §6): display name
// resolution is remark ∨ nick_name ∨ username.
type Contact struct {
	Username string
	NickName string
	Remark   string
}

// DisplayName implements the remark ∨ nick_name ∨ username precedence.
func (c Contact) DisplayName() string {
	if c.Remark != "" {
		return c.Remark
	}
	if c.NickName != "" {
		return c.NickName
	}
	return c.Username
}

// Orchestrator discovers message DBs under a messenger account's data root,
// derives keys, decodes rows, resolves media, and yields Conversations
// (C5). It is the top of the C5→C2→C3→C4→C1 pipeline described in spec §2.
type Orchestrator struct {
	Root          string
	Master        []byte
	SQLCipherBin  string
	Concurrency   int
	contactByHash map[string]Contact
}

var msgDBPattern = regexp.MustCompile(`^message_\d+\.db$`)

// DiscoverMessageDBs lists chat-message database files under the account's
// data root, per the fixed layout in spec §6.
func (o *Orchestrator) DiscoverMessageDBs() ([]string, error) {
	dir := filepath.Join(o.Root, "db_storage", "message")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, harvestererr.New(harvestererr.IoError, dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if msgDBPattern.MatchString(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadContacts opens and decodes the contact table, keyed by MD5(username)
// so it can be joined against a chat table's "Msg_<hash>" suffix.
func (o *Orchestrator) LoadContacts(ctx context.Context) (map[string]Contact, error) {
	path := filepath.Join(o.Root, "db_storage", "contact", "contact.db")
	key, err := DeriveKey(o.Master, path)
	if err != nil {
		return nil, err
	}
	db := Open(path, key, o.SQLCipherBin)

	rows, err := db.Query(ctx, "SELECT username, nick_name, remark FROM contact;")
	if err != nil {
		return nil, err
	}

	out := make(map[string]Contact, len(rows))
	for _, r := range rows {
		c := Contact{
			Username: fmt.Sprint(r["username"]),
			NickName: fmt.Sprint(r["nick_name"]),
			Remark:   fmt.Sprint(r["remark"]),
		}
		if c.Username == "" || c.Username == "<nil>" {
			continue
		}
		out[contactHash(c.Username)] = c
	}
	o.contactByHash = out
	return out, nil
}

func contactHash(username string) string {
	sum := md5.Sum([]byte(username))
	return hex.EncodeToString(sum[:])
}

// ExtractAll walks every discovered message DB, deriving a key, listing its
// Msg_<hash> chat tables, and yielding one Conversation per table. DB-level
// failures (BadKey, FormatDrift) are logged by the caller and skipped —
// extraction continues with the next file, per spec §7's per-file recovery
// policy. Within a DB, chat tables are extracted with bounded concurrency
// (golang.org/x/sync/errgroup, mirroring the teacher's concurrency-control
// dependency) since each table maps to a disjoint conversation and ordering
// is only required within a single conversation's messages.
func (o *Orchestrator) ExtractAll(ctx context.Context, onSkip func(path string, err error)) ([]model.Conversation, error) {
	if o.contactByHash == nil {
		if _, err := o.LoadContacts(ctx); err != nil {
			if onSkip != nil {
				onSkip(filepath.Join(o.Root, "db_storage", "contact", "contact.db"), err)
			}
			o.contactByHash = map[string]Contact{}
		}
	}

	dbPaths, err := o.DiscoverMessageDBs()
	if err != nil {
		return nil, err
	}

	var all []model.Conversation
	for _, dbPath := range dbPaths {
		convs, err := o.extractOneDB(ctx, dbPath)
		if err != nil {
			if onSkip != nil {
				onSkip(dbPath, err)
			}
			continue
		}
		all = append(all, convs...)
	}
	return all, nil
}

func (o *Orchestrator) extractOneDB(ctx context.Context, dbPath string) ([]model.Conversation, error) {
	key, err := DeriveKey(o.Master, dbPath)
	if err != nil {
		return nil, err
	}
	db := Open(dbPath, key, o.SQLCipherBin)

	tables, err := db.QueryValues(ctx, "SELECT name FROM sqlite_master WHERE type='table';", "name")
	if err != nil {
		return nil, err
	}

	var chatTables []string
	for _, t := range tables {
		if strings.HasPrefix(t, "Msg_") {
			chatTables = append(chatTables, t)
		}
	}
	if len(chatTables) == 0 {
		return nil, harvestererr.New(harvestererr.FormatDrift, dbPath, fmt.Errorf("no Msg_* chat tables found"))
	}
	sort.Strings(chatTables)

	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]model.Conversation, len(chatTables))
	ok := make([]bool, len(chatTables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, table := range chatTables {
		i, table := i, table
		g.Go(func() error {
			conv, convErr := o.extractChatTable(gctx, db, dbPath, table)
			if convErr != nil {
				// Per-table failures are corrupt-record-scoped, not fatal
				// to the whole DB file: skip just this table.
				return nil
			}
			results[i] = conv
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Conversation
	for i, present := range ok {
		if present {
			out = append(out, results[i])
		}
	}
	return out, nil
}

func (o *Orchestrator) extractChatTable(ctx context.Context, db *DB, dbPath, table string) (model.Conversation, error) {
	hash := strings.TrimPrefix(table, "Msg_")
	contact := o.contactByHash[hash]

	query := fmt.Sprintf(
		`SELECT local_id, server_id, type, sender_id, create_time, status,
		        message_content, WCDB_CT_message_content,
		        CASE WHEN WCDB_CT_message_content != 0
		             THEN hex(message_content) ELSE '' END AS message_content_hex
		 FROM %s ORDER BY create_time ASC, local_id ASC;`, table)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return model.Conversation{}, err
	}

	conv := model.Conversation{
		ID:       "wechat-" + sanitizeID(orDefault(contact.Username, hash)),
		Platform: "wechat",
		Title:    contact.DisplayName(),
		Metadata: map[string]interface{}{
			"is_group":     strings.HasSuffix(contact.Username, "@chatroom"),
			"contact_hash": hash,
		},
	}

	for _, raw := range rows {
		row := toRow(raw)
		msg, ok := DecodeRow(row)
		if !ok {
			continue
		}
		// server_id is the chat protocol's own message identifier, but
		// rows that never round-tripped through the server (local-only
		// drafts, system notices) carry server_id=0; mint a correlation
		// id for those so store records always have a stable key.
		if row.ServerID != 0 {
			msg.MessageID = strconv.FormatInt(row.ServerID, 10)
		} else {
			msg.MessageID = uuid.NewString()
		}
		for i := range msg.Media {
			ym := msg.Timestamp.Format("200601")
			ResolveMediaPath(&msg.Media[i], MediaLocator{
				Root:        o.Root,
				ContactHash: hash,
				YYYYMM:      ym,
				LocalID:     row.LocalID,
				Filename:    msg.Media[i].Filename,
			})
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return conv, nil
}

func toRow(raw map[string]any) Row {
	var r Row
	r.LocalID = toInt64(raw["local_id"])
	r.ServerID = toInt64(raw["server_id"])
	r.RawType = toInt64(raw["type"])
	r.SenderID = fmt.Sprint(raw["sender_id"])
	r.CreateTime = toInt64(raw["create_time"])
	r.Status = toInt64(raw["status"])
	if s, ok := raw["message_content"].(string); ok {
		r.Content = s
	}
	r.CompressFlag = toInt64(raw["WCDB_CT_message_content"])
	r.ContentHex, _ = raw["message_content_hex"].(string)
	return r
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

var sanitizeIDRE = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeID keeps alnum/-/_ characters and replaces everything else with
// "_", matching the reference implementation's _sanitize_id.
func sanitizeID(s string) string {
	return sanitizeIDRE.ReplaceAllString(s, "_")
}
