package metrics

import (
	"fmt"

	"github.com/ahrav/go-prism/internal/ports"
)

// builtins lists the registration functions in start-up order.
var builtins = []struct {
	group    string
	register func(ports.Registrar) error
}{
	{"rank_ordering", RegisterRankOrdering},
	{"accuracy", RegisterAccuracy},
	{"stability", RegisterStability},
}

// RegisterBuiltins registers every built-in metric with r. It is called
// once at start-up, before any report is computed.
func RegisterBuiltins(r ports.Registrar) error {
	for _, b := range builtins {
		if err := b.register(r); err != nil {
			return fmt.Errorf("register %s metrics: %w", b.group, err)
		}
	}
	return nil
}

// BuiltinIDs returns the ids registered by RegisterBuiltins, in order.
func BuiltinIDs() []string {
	return []string{GiniID, KSID, AccuracyID, PrecisionRecallID, PSIID, CSIID}
}
