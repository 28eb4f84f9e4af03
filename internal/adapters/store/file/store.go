package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

const (
	storeDirMode     = 0o700
	snapshotFileMode = 0o600
	snapshotPrefix   = "session-"
	snapshotSuffix   = ".json"
	tempFilePattern  = ".session-*.json.tmp"
)

// Store keeps one JSON snapshot file per entity under root. Writes replace
// the whole file atomically, so concurrent writers resolve to last-write-wins
// without ever mixing fields from two versions.
type Store struct {
	root string
	mu   sync.RWMutex
	log  *slog.Logger
}

var _ ports.SnapshotStore = (*Store)(nil)

func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{root: filepath.Clean(root), log: logger}
}

func (s *Store) Load(ctx context.Context, id domain.EntityID) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	path, err := s.pathForID(id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Snapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("read snapshot %q: %w", id, err)
	}

	var schema snapshotSchema
	if err := json.Unmarshal(data, &schema); err != nil || schema.Version == "" {
		// Corrupt stored data degrades to a miss; the caller falls back to
		// the network path.
		s.log.Warn("discarding corrupt snapshot", "entity_id", string(id))
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}

	return fromSchema(id, schema), nil
}

func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForID(snapshot.EntityID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(toSchema(snapshot))
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", snapshot.EntityID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	return replaceFile(path, data)
}

func (s *Store) Delete(ctx context.Context, id domain.EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot %q: %w", id, err)
	}

	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	ids := make([]domain.EntityID, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		if id != "" {
			ids = append(ids, domain.EntityID(id))
		}
	}

	return ids, nil
}

func (s *Store) pathForID(id domain.EntityID) (string, error) {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" {
		return "", errors.New("entity id is empty")
	}
	if strings.ContainsAny(trimmed, "/\\") || trimmed == "." || trimmed == ".." {
		return "", fmt.Errorf("invalid entity id %q", id)
	}

	return filepath.Join(s.root, snapshotPrefix+trimmed+snapshotSuffix), nil
}

func replaceFile(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := tempFile.Chmod(snapshotFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	cleanup = false

	return nil
}

type snapshotSchema struct {
	Version   string        `json:"version"`
	CachedAt  int64         `json:"cachedAt"`
	ExpiresAt int64         `json:"expiresAt"`
	Session   sessionSchema `json:"session"`
}

type sessionSchema struct {
	CompanyID      string            `json:"companyId"`
	ConversationID string            `json:"conversationId,omitempty"`
	Step           int               `json:"step"`
	Answers        map[string]string `json:"answers,omitempty"`
	Result         *resultSchema     `json:"result,omitempty"`
	ReportHTML     string            `json:"reportHtml,omitempty"`
	InfoHTML       string            `json:"infoPanelHtml,omitempty"`
}

type resultSchema struct {
	ValuationID     string  `json:"valuationId"`
	EquityValue     int64   `json:"equityValue"`
	RangeMin        int64   `json:"rangeMin"`
	RangeMax        int64   `json:"rangeMax"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Methodology     string  `json:"methodology"`
}

func toSchema(snapshot domain.Snapshot) snapshotSchema {
	session := sessionSchema{
		CompanyID:      snapshot.Payload.CompanyID,
		ConversationID: snapshot.Payload.ConversationID,
		Step:           snapshot.Payload.Step,
		Answers:        snapshot.Payload.Answers,
		ReportHTML:     snapshot.Payload.ReportHTML,
		InfoHTML:       snapshot.Payload.InfoHTML,
	}
	if result := snapshot.Payload.Result; result != nil {
		session.Result = &resultSchema{
			ValuationID:     result.ValuationID,
			EquityValue:     result.EquityValue,
			RangeMin:        result.RangeMin,
			RangeMax:        result.RangeMax,
			ConfidenceScore: result.ConfidenceScore,
			Methodology:     result.Methodology,
		}
	}

	return snapshotSchema{
		Version:   snapshot.Version,
		CachedAt:  snapshot.CachedAt.UnixMilli(),
		ExpiresAt: snapshot.ExpiresAt.UnixMilli(),
		Session:   session,
	}
}

func fromSchema(id domain.EntityID, schema snapshotSchema) domain.Snapshot {
	payload := domain.SessionPayload{
		CompanyID:      schema.Session.CompanyID,
		ConversationID: schema.Session.ConversationID,
		Step:           schema.Session.Step,
		Answers:        schema.Session.Answers,
		ReportHTML:     schema.Session.ReportHTML,
		InfoHTML:       schema.Session.InfoHTML,
	}
	if result := schema.Session.Result; result != nil {
		payload.Result = &domain.ValuationResult{
			ValuationID:     result.ValuationID,
			EquityValue:     result.EquityValue,
			RangeMin:        result.RangeMin,
			RangeMax:        result.RangeMax,
			ConfidenceScore: result.ConfidenceScore,
			Methodology:     result.Methodology,
		}
	}

	return domain.Snapshot{
		EntityID:  id,
		Version:   schema.Version,
		CachedAt:  time.UnixMilli(schema.CachedAt),
		ExpiresAt: time.UnixMilli(schema.ExpiresAt),
		Payload:   payload,
	}
}
