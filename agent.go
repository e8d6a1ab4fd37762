package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wellnessatwork/blinksync/internal/api"
	"github.com/wellnessatwork/blinksync/internal/config"
	"github.com/wellnessatwork/blinksync/internal/credentials"
	"github.com/wellnessatwork/blinksync/internal/deviceid"
	"github.com/wellnessatwork/blinksync/internal/store"
	"github.com/wellnessatwork/blinksync/internal/sync"
)

// tokenMetaUserID is the key under which login stores the account id in
// the token file metadata.
const tokenMetaUserID = "user_id"

// Agent bundles the store, API client, credentials, and engine a command
// needs. Replaces threading five constructor results through every RunE.
type Agent struct {
	Store    *store.Store
	Client   *api.Client
	Creds    *credentials.Cache
	Engine   *sync.Engine
	DeviceID deviceid.ID
	UserID   string
}

// newAgent wires up the full stack from resolved config. The caller owns
// Close.
func newAgent(ctx context.Context, cc *CLIContext) (*Agent, error) {
	userID, err := resolveUserID(cc)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cc.Cfg.Storage.DBPath), credentials.DirPerms); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cc.Cfg.Storage.DBPath, cc.Logger)
	if err != nil {
		return nil, err
	}

	devID, err := resolveDeviceID(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	var refresher credentials.Refresher
	if cc.Cfg.API.TokenURL != "" {
		refresher = credentials.NewOAuth2Refresher(cc.Cfg.API.TokenURL, cc.Cfg.API.ClientID)
	}

	creds := credentials.NewCache(config.DefaultTokenPath(), refresher)

	client := api.NewClient(cc.Cfg.API.BaseURL, creds, api.Options{
		Timeout:   cc.Durations.APITimeout,
		RateLimit: cc.Cfg.API.RateLimit,
		RateBurst: cc.Cfg.API.RateBurst,
	}, cc.Logger)

	engine := sync.NewEngine(&sync.EngineConfig{
		Store:          st,
		Backend:        client,
		Refresher:      creds,
		Logger:         cc.Logger,
		Backoff:        sync.NewBackoff(cc.Durations.BaseDelay, cc.Durations.MaxDelay),
		BatchSize:      cc.Cfg.Sync.BatchSize,
		PollInterval:   cc.Durations.PollInterval,
		HealthInterval: cc.Durations.HealthInterval,
	})

	return &Agent{
		Store:    st,
		Client:   client,
		Creds:    creds,
		Engine:   engine,
		DeviceID: devID,
		UserID:   userID,
	}, nil
}

// Close releases the agent's resources.
func (a *Agent) Close() error {
	return a.Store.Close()
}

// Tracker builds the producer for this agent's user and device.
func (a *Agent) Tracker(cc *CLIContext) *sync.Tracker {
	return sync.NewTracker(&sync.TrackerConfig{
		Store:          a.Store,
		UserID:         a.UserID,
		DeviceID:       a.DeviceID.String(),
		AppVersion:     version,
		FlushThreshold: cc.Cfg.Sync.FlushThreshold,
		MaxRetries:     cc.Cfg.Sync.MaxRetries,
		Trigger:        a.Engine.TriggerSync,
		Logger:         cc.Logger,
	})
}

// resolveUserID picks the account: the --user flag wins, then the id
// stored at login.
func resolveUserID(cc *CLIContext) (string, error) {
	if cc.Flags.UserID != "" {
		return cc.Flags.UserID, nil
	}

	_, meta, err := credentials.Load(config.DefaultTokenPath())
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			return "", errors.New("no user id: run 'blinksync login' or pass --user")
		}
		return "", err
	}

	if id := meta[tokenMetaUserID]; id != "" {
		return id, nil
	}

	return "", errors.New("no user id: run 'blinksync login' or pass --user")
}

// resolveDeviceID returns the stable device identity, generating and
// persisting it on first use so it survives hostname changes.
func resolveDeviceID(ctx context.Context, st *store.Store) (deviceid.ID, error) {
	setting, err := st.GetSetting(ctx, store.SettingDeviceID)
	if err != nil {
		return deviceid.ID{}, err
	}
	if setting != nil {
		return deviceid.Parse(setting.Value)
	}

	id, err := deviceid.New()
	if err != nil {
		return deviceid.ID{}, err
	}

	if err := st.SetSetting(ctx, store.SettingDeviceID, id.String()); err != nil {
		return deviceid.ID{}, err
	}

	return id, nil
}
