package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hsdfat/go-zlog/logger"
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/services"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// archive keeps received instances in memory, and on disk when a
// directory is configured, and serves them back to C-GET.
type archive struct {
	dir string
	log logger.LoggerI

	mu        sync.RWMutex
	instances map[string]services.Instance // Key: SOPInstanceUID
}

func newArchive(dir string, log logger.LoggerI) (*archive, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create storage directory")
		}
	}
	return &archive{dir: dir, log: log, instances: make(map[string]services.Instance)}, nil
}

func (a *archive) store(ctx context.Context, msg *types.Message, data []byte) (uint16, error) {
	uid := msg.AffectedSOPInstanceUID
	if !types.IsValidUID(uid) {
		a.log.Warnw("Refusing instance with invalid UID", "sop_instance", uid)
		return types.StatusFailure, nil
	}
	if a.dir != "" {
		path := filepath.Join(a.dir, uid+".dcm")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return types.StatusFailure, errors.Wrap(err, "write instance")
		}
	}

	a.mu.Lock()
	a.instances[uid] = services.Instance{
		SOPClassUID:    msg.AffectedSOPClassUID,
		SOPInstanceUID: uid,
		Data:           append([]byte(nil), data...),
	}
	count := len(a.instances)
	a.mu.Unlock()

	a.log.Infow("Stored instance",
		"sop_class", types.UIDName(msg.AffectedSOPClassUID),
		"sop_instance", uid,
		"size_bytes", len(data),
		"stored", count)
	return types.StatusSuccess, nil
}

// all returns every stored instance; identifiers are not matched.
func (a *archive) all(ctx context.Context, msg *types.Message, query []byte) ([]services.Instance, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]services.Instance, 0, len(a.instances))
	for _, inst := range a.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SOPInstanceUID < out[j].SOPInstanceUID })
	return out, nil
}
