// Package netstack picks a transport implementation by its configured kind.
package netstack

import (
	"fmt"
	"strings"

	"github.com/ib-77/txpipe/pkg/transport"
	"github.com/ib-77/txpipe/pkg/transport/mem"
	"github.com/ib-77/txpipe/pkg/transport/tcp"
	"github.com/ib-77/txpipe/pkg/transport/ws"
)

// Kinds lists the supported transport kinds.
var Kinds = []string{"tcp", "ws", "mem"}

// NewByKind returns the transport for kind. The mem kind always resolves to
// the shared in-process transport so listeners and dialers can find each
// other.
func NewByKind(kind string) (transport.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tcp", "":
		return tcp.New(), nil
	case "ws", "websocket":
		return ws.New(), nil
	case "mem", "inproc":
		return mem.Default(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (known: %s)", kind, strings.Join(Kinds, ", "))
	}
}
