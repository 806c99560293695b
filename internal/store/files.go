package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrader/internal/secure"
	"copytrader/models"
)

// encPrefix marks credential fields stored encrypted.
const encPrefix = "enc:v1:"

// ErrAccountNotFound is returned when an account config does not exist.
var ErrAccountNotFound = errors.New("account not found")

// subdirectories created under the data directory.
var dataSubdirs = []string{
	"accounts", "logs", "reports", "history", "sync_state", "backups",
}

// FileStore manages account configs, sync state and reports on disk.
type FileStore struct {
	dataDir   string
	encryptor *secure.Encryptor // nil disables credential encryption
	logger    zerolog.Logger
}

// NewFileStore creates the data directory tree and returns a store.
func NewFileStore(dataDir string, encryptor *secure.Encryptor) (*FileStore, error) {
	for _, sub := range dataSubdirs {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	return &FileStore{
		dataDir:   dataDir,
		encryptor: encryptor,
		logger:    log.With().Str("component", "store").Logger(),
	}, nil
}

// DataDir returns the base data directory.
func (s *FileStore) DataDir() string { return s.dataDir }

func (s *FileStore) accountPath(nickname string) string {
	return filepath.Join(s.dataDir, "accounts", nickname+".json")
}

func (s *FileStore) syncStatePath(master, slave string) string {
	return filepath.Join(s.dataDir, "sync_state", fmt.Sprintf("%s_%s_state.json", master, slave))
}

// LoadAccounts reads every account config under accounts/ keyed by nickname.
// Credentials are decrypted when stored encrypted.
func (s *FileStore) LoadAccounts() (map[string]*models.Account, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "accounts"))
	if err != nil {
		return nil, fmt.Errorf("reading accounts dir: %w", err)
	}

	accounts := make(map[string]*models.Account)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.Contains(entry.Name(), ".backup.") {
			continue
		}

		var account models.Account
		if err := s.loadJSON(filepath.Join(s.dataDir, "accounts", entry.Name()), &account); err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}

		if err := s.decryptCredentials(&account); err != nil {
			return nil, fmt.Errorf("decrypting credentials for %s: %w", account.Nickname, err)
		}

		if errs := secure.ValidateAccount(&account); len(errs) > 0 {
			return nil, fmt.Errorf("invalid account config %s: %s", entry.Name(), strings.Join(errs, "; "))
		}

		accounts[account.Nickname] = &account
	}

	return accounts, nil
}

// LoadAccount reads one account config.
func (s *FileStore) LoadAccount(nickname string) (*models.Account, error) {
	var account models.Account
	if err := s.loadJSON(s.accountPath(nickname), &account); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, nickname)
		}
		return nil, err
	}
	if err := s.decryptCredentials(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveAccount writes an account config atomically, encrypting credentials
// when an encryption key is configured. The previous file is kept as a
// timestamped backup.
func (s *FileStore) SaveAccount(account *models.Account) error {
	stored := *account
	if s.encryptor != nil {
		key, err := s.encryptor.Encrypt(account.APIKey)
		if err != nil {
			return fmt.Errorf("encrypting api key: %w", err)
		}
		sec, err := s.encryptor.Encrypt(account.APISecret)
		if err != nil {
			return fmt.Errorf("encrypting api secret: %w", err)
		}
		stored.APIKey = encPrefix + key
		stored.APISecret = encPrefix + sec
	}

	return s.saveJSON(s.accountPath(account.Nickname), &stored, true)
}

func (s *FileStore) decryptCredentials(account *models.Account) error {
	for _, field := range []*string{&account.APIKey, &account.APISecret} {
		if !strings.HasPrefix(*field, encPrefix) {
			continue
		}
		if s.encryptor == nil {
			return fmt.Errorf("credentials are encrypted but COPYTRADER_ENCRYPTION_KEY is not set")
		}
		plain, err := s.encryptor.Decrypt(strings.TrimPrefix(*field, encPrefix))
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// ResetDaily clears an account's per-day tracking fields. Called at UTC
// midnight.
func (s *FileStore) ResetDaily(nickname string) error {
	account, err := s.LoadAccount(nickname)
	if err != nil {
		return err
	}

	account.MaxBalanceToday = nil
	account.MinBalanceToday = nil
	account.DayStartBalance = nil
	account.PnLToday = 0
	account.DrawdownAlertedLevels = nil

	return s.SaveAccount(account)
}

// LoadSyncState reads the persisted state of a master→slave pair, returning
// a zero state when none has been saved yet.
func (s *FileStore) LoadSyncState(master, slave string) (*models.SyncState, error) {
	var state models.SyncState
	if err := s.loadJSON(s.syncStatePath(master, slave), &state); err != nil {
		if os.IsNotExist(err) {
			return &models.SyncState{Master: master, Slave: slave}, nil
		}
		return nil, err
	}
	return &state, nil
}

// SaveSyncState persists the state of a pair.
func (s *FileStore) SaveSyncState(state *models.SyncState) error {
	state.LastUpdated = time.Now().UTC()
	return s.saveJSON(s.syncStatePath(state.Master, state.Slave), state, false)
}

// balance history file fallback, used when no Postgres store is configured.

type balanceHistoryFile struct {
	Account     string                `json:"account"`
	LastUpdated time.Time             `json:"last_updated"`
	Data        []models.BalanceEntry `json:"data"`
}

func (s *FileStore) balanceHistoryPath(account string) string {
	return filepath.Join(s.dataDir, "history", account+"_balance_history.json")
}

// LoadBalanceHistory reads an account's balance snapshots, oldest first.
func (s *FileStore) LoadBalanceHistory(account string) ([]models.BalanceEntry, error) {
	var file balanceHistoryFile
	if err := s.loadJSON(s.balanceHistoryPath(account), &file); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return file.Data, nil
}

// SaveBalanceHistory persists an account's balance snapshots.
func (s *FileStore) SaveBalanceHistory(account string, entries []models.BalanceEntry) error {
	return s.saveJSON(s.balanceHistoryPath(account), &balanceHistoryFile{
		Account:     account,
		LastUpdated: time.Now().UTC(),
		Data:        entries,
	}, false)
}

// SaveReport writes a report JSON under reports/.
func (s *FileStore) SaveReport(name string, report any) error {
	return s.saveJSON(filepath.Join(s.dataDir, "reports", name), report, false)
}

// loadJSON reads and decodes a JSON file.
func (s *FileStore) loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

// saveJSON writes a JSON file atomically via a temp file and rename,
// optionally keeping a timestamped backup of the previous content.
func (s *FileStore) saveJSON(path string, v any, backup bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if backup {
		if _, err := os.Stat(path); err == nil {
			backupPath := strings.TrimSuffix(path, ".json") +
				".backup." + time.Now().Format("20060102_150405") + ".json"
			if prev, err := os.ReadFile(path); err == nil {
				if err := os.WriteFile(backupPath, prev, 0o600); err != nil {
					s.logger.Warn().Err(err).Str("path", backupPath).Msg("Failed to write backup")
				}
			}
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
