package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FileStore serves schedules from a YAML or JSON file of the form
//
//	sellers:
//	  - seller_id: s1
//	    sea: {mode: fixed, fixed: {habana_city: 1100}}
//
// and reloads it when the file changes. A reload that fails to parse or
// validate is logged and ignored; the previous schedules stay in effect.
type FileStore struct {
	current atomic.Value // holds map[string]tariffdomain.SellerTariff
	log     *zap.Logger
}

type tariffFile struct {
	Sellers []tariffdomain.SellerTariff `json:"sellers"`
}

// NewFileStore loads path and, when watch is set, keeps it in sync.
func NewFileStore(path string, watch bool, log *zap.Logger) (*FileStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tariff file %s: %w", path, err)
	}

	schedules, err := decodeSchedules(v)
	if err != nil {
		return nil, err
	}

	store := &FileStore{log: log.Named("tariff.file_store")}
	store.current.Store(schedules)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeSchedules(v)
			if err != nil {
				store.log.Error("tariff reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			store.current.Store(updated)
			store.log.Info("tariffs reloaded", zap.String("file", e.Name), zap.Int("sellers", len(updated)))
		})
		v.WatchConfig()
	}

	return store, nil
}

func (s *FileStore) GetSellerTariff(_ context.Context, sellerID string) (*tariffdomain.SellerTariff, error) {
	schedules := s.current.Load().(map[string]tariffdomain.SellerTariff)
	t, ok := schedules[sellerID]
	if !ok {
		return nil, tariffdomain.ErrTariffNotFound
	}
	return &t, nil
}

// decodeSchedules goes through JSON so decimal weights and zone-keyed maps
// decode with their own unmarshalers.
func decodeSchedules(v *viper.Viper) (map[string]tariffdomain.SellerTariff, error) {
	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, err
	}
	var file tariffFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode tariff file: %w", err)
	}

	out := make(map[string]tariffdomain.SellerTariff, len(file.Sellers))
	for _, t := range file.Sellers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[t.SellerID]; dup {
			return nil, &tariffdomain.Error{Code: tariffdomain.ErrInvalidTariff, SellerID: t.SellerID, Detail: "duplicate seller"}
		}
		out[t.SellerID] = t
	}
	return out, nil
}
