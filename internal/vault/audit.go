package vault

import (
	"time"

	"go.uber.org/zap"

	"caleon/internal/types"
)

// Append records one audit entry. The log is append-only and its order is
// strictly monotonic with respect to the vault's clock: an entry stamped at
// or before its predecessor is bumped forward by a nanosecond. A decision
// must be appended before its caller observes the result, so every observer
// sees decision happens-before observation.
func (v *Vault) Append(entry types.AuditEntry) {
	v.auditMu.Lock()
	defer v.auditMu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = v.now()
	}
	if !entry.Timestamp.After(v.lastStamp) {
		entry.Timestamp = v.lastStamp.Add(time.Nanosecond)
	}
	v.lastStamp = entry.Timestamp

	v.audit = append(v.audit, entry)

	if v.persister != nil {
		if err := v.persister.AppendAudit(entry); err != nil {
			v.logger.Error("persist audit entry failed",
				zap.String("action", string(entry.Action)),
				zap.String("memory_id", entry.MemoryID),
				zap.Error(err))
		}
	}
}

// AuditLog returns the ordered audit sequence. The vault never truncates it.
func (v *Vault) AuditLog() []types.AuditEntry {
	v.auditMu.Lock()
	defer v.auditMu.Unlock()

	out := make([]types.AuditEntry, len(v.audit))
	copy(out, v.audit)
	return out
}
