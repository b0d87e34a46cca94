package handler

import (
	"encoding/json"
	"os"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/archive"
)

// infoRecordName is the archive member the handler writes once, after the
// core is streamed, with the fingerprint and the streamed byte count filled
// in. An archive from a FAILED session has no such member.
const infoRecordName = "info.crashdata"

// infoRecord is the JSON body embedded at infoRecordName.
type infoRecord struct {
	Timestamp    uint64 `json:"timestamp"`
	PID          int64  `json:"pid"`
	Signal       int64  `json:"signal"`
	ProcName     string `json:"proc_name"`
	ThreadName   string `json:"thread_name"`
	ContextID    string `json:"context_id"`
	OnHost       bool   `json:"on_host"`
	CrashID      string `json:"crash_id,omitempty"`
	VectorID     string `json:"vector_id,omitempty"`
	CoredumpSize uint64 `json:"coredump_size,omitempty"`
}

func (h *Handler) writePostStreamRecord(ar *archive.Archive) error {
	rec := infoRecord{
		Timestamp:    h.info.Timestamp,
		PID:          h.info.PID,
		Signal:       h.info.Signal,
		ProcName:     h.info.ProcName,
		ThreadName:   h.info.ThreadName,
		ContextID:    h.info.ContextID,
		OnHost:       h.info.OnHost,
		CrashID:      h.info.CrashID,
		VectorID:     h.info.VectorID,
		CoredumpSize: h.info.CoredumpSize,
	}
	return writeJSONMember(ar, infoRecordName, rec)
}

func writeJSONMember(ar *archive.Archive, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := ar.CreateFile(name, int64(len(data))); err != nil {
		return err
	}
	if err := ar.WriteFile(data); err != nil {
		return err
	}
	return ar.FinishFile()
}

// sweepCrashContexts embeds every configured crashcontext file whose
// ProcName matches this crash and whose PostCore flag matches phase. A
// missing or unreadable source file is logged and skipped: one
// misconfigured context must never abort the capture.
func (h *Handler) sweepCrashContexts(ar *archive.Archive, postCore bool) {
	for _, cc := range h.cfg.CrashContexts {
		if cc.PostCore != postCore {
			continue
		}
		matched, err := cc.Matches(h.info.ProcName)
		if err != nil {
			logger.Warn("handler: crashcontext pattern invalid", "context", cc.Name, logger.Err(err))
			continue
		}
		if !matched {
			continue
		}

		path := cc.ExpandDataPath(h.info.PID)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("handler: crashcontext source unreadable", "context", cc.Name, logger.Path(path), logger.Err(err))
			continue
		}
		if err := ar.CreateFile(cc.Name, int64(len(data))); err != nil {
			logger.Warn("handler: crashcontext member create failed", "context", cc.Name, logger.Err(err))
			continue
		}
		if err := ar.WriteFile(data); err != nil {
			logger.Warn("handler: crashcontext member write failed", "context", cc.Name, logger.Err(err))
			continue
		}
		if err := ar.FinishFile(); err != nil {
			logger.Warn("handler: crashcontext member finish failed", "context", cc.Name, logger.Err(err))
		}
	}
}
