package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newthinker/nextsignal/internal/core"
)

// IdentityStore keeps display user ids in a PostgREST table with columns id and user_id.
type IdentityStore struct {
	c     *Client
	table string
}

// Identities returns an identity store over table.
func (c *Client) Identities(table string) *IdentityStore {
	if table == "" {
		table = "users"
	}
	return &IdentityStore{c: c, table: table}
}

type identityRow struct {
	ID     string  `json:"id,omitempty"`
	UserID *string `json:"user_id"`
}

func (s *IdentityStore) key() string {
	if s.c.serviceKey != "" {
		return s.c.serviceKey
	}
	return s.c.anonKey
}

// Get returns the display id for an auth user.
func (s *IdentityStore) Get(ctx context.Context, authUserID string) (string, error) {
	q := url.Values{}
	q.Set("select", "user_id")
	q.Set("id", "eq."+authUserID)

	var rows []identityRow
	if _, err := s.c.do(ctx, http.MethodGet, "/rest/v1/"+s.table+"?"+q.Encode(), s.key(), "", nil, &rows, nil); err != nil {
		return "", fmt.Errorf("supabase.Get: %w", err)
	}
	if len(rows) == 0 || rows[0].UserID == nil || *rows[0].UserID == "" {
		return "", core.ErrIdentityNotFound
	}
	return *rows[0].UserID, nil
}

// Set upserts the display id for an auth user.
func (s *IdentityStore) Set(ctx context.Context, authUserID, displayID string) error {
	row := identityRow{ID: authUserID, UserID: &displayID}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"}

	if _, err := s.c.do(ctx, http.MethodPost, "/rest/v1/"+s.table, s.key(), "", row, nil, headers); err != nil {
		return fmt.Errorf("supabase.Set: %w", err)
	}
	return nil
}
