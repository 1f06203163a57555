package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"clip-wizard-server/modules/common/config"
	"github.com/supabase-community/supabase-go"
)

// AssembliesTable - archive of assembled wizard sessions
const AssembliesTable = "wizard_assemblies"

// AssemblyVideo - one approved video in an archived assembly
type AssemblyVideo struct {
	ID       string `json:"id"`
	ClipID   int    `json:"clip_id"`
	ClipText string `json:"clip_text"`
	VideoURL string `json:"video_url"`
}

// AssemblyRecord - row of wizard_assemblies
type AssemblyRecord struct {
	SessionID string          `json:"session_id"`
	Concept   string          `json:"concept"`
	ClipCount int             `json:"clip_count"`
	Videos    []AssemblyVideo `json:"videos"`
}

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database client
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	log.Printf("✅ [Database] Supabase client ready (%s)", cfg.SupabaseURL)
	return &Client{supabase: supabaseClient}, nil
}

// InsertAssembly - archive one assembly. The postgrest builder takes no
// context, so ctx is only checked before the request is sent.
func (c *Client) InsertAssembly(ctx context.Context, rec AssemblyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("📝 [Database] Archiving assembly for session %s (%d videos)", rec.SessionID, len(rec.Videos))

	_, _, err := c.supabase.From(AssembliesTable).
		Insert(rec, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert assembly: %w", err)
	}
	return nil
}

// ListAssemblies - archived assemblies of a session. ctx is checked like in InsertAssembly.
func (c *Client) ListAssemblies(ctx context.Context, sessionID string) ([]AssemblyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := c.supabase.From(AssembliesTable).
		Select("*", "exact", false).
		Eq("session_id", sessionID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	var records []AssemblyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return records, nil
}
