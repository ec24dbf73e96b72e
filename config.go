package session

import (
	"net/http"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// stateFileName is the durable tier file inside Config.StateDir.
const stateFileName = "session.json"

// Config assembles a complete subsystem: storage tiers, transport, manager.
type Config struct {
	// BaseURL of the identity service, e.g. "https://api.example.com".
	BaseURL string
	// StateDir holds the durable tier file.
	StateDir string
	// HTTPTimeout bounds each identity call. Zero means 30 seconds.
	HTTPTimeout time.Duration
	Logger      Logger
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.StateDir, validation.Required),
	)
}

// New builds the storage tiers, the client, and the manager, and subscribes
// the manager to the client's session events. Most host applications only
// need this one call.
func New(cfg Config) (*Manager, *Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, invalidPayload(err)
	}

	durable, err := NewFileStorage(filepath.Join(cfg.StateDir, stateFileName))
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defLogger{}
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	store := NewTokenStore(durable, NewMemoryStorage())

	client := NewClient(cfg.BaseURL, store,
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithClientLogger(logger),
	)

	manager := NewManager(client, store, WithManagerLogger(logger))
	client.WithEventSink(manager)

	return manager, client, nil
}
