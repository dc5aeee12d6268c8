package network

import (
	"github.com/google/uuid"
	"github.com/quasilyte/gdata"
)

// TokenStore remembers the reconnect token issued by each server.
type TokenStore interface {
	Load(server string) (uuid.UUID, bool)
	Save(server string, token uuid.UUID) error
}

// DiskTokens persists reconnect tokens in the user's data directory.
type DiskTokens struct {
	m *gdata.Manager
}

// OpenDiskTokens opens the token store for app.
func OpenDiskTokens(app string) (*DiskTokens, error) {
	m, err := gdata.Open(gdata.Config{AppName: app})
	if err != nil {
		return nil, err
	}
	return &DiskTokens{m: m}, nil
}

// itemKey maps a server address onto a stable file-safe key.
func itemKey(server string) string {
	return "token_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(server)).String()
}

func (d *DiskTokens) Load(server string) (uuid.UUID, bool) {
	data, err := d.m.LoadItem(itemKey(server))
	if err != nil || len(data) == 0 {
		return uuid.Nil, false
	}
	token, err := uuid.ParseBytes(data)
	if err != nil {
		return uuid.Nil, false
	}
	return token, true
}

func (d *DiskTokens) Save(server string, token uuid.UUID) error {
	return d.m.SaveItem(itemKey(server), []byte(token.String()))
}
