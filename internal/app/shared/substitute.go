package shared

import (
	"strings"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// Substitute replaces every {name} placeholder in cmd with params[name]
// (spec's "Parameter substitution"). Used by both the collector's mode
// enable path and the state machine's disable-on-teardown path, since both
// send mode-scoped commands built from the same {name} template syntax. An
// unresolved placeholder is a hard error (ParameterMissing).
func Substitute(cmd string, instrumentID int, modeID string, params map[string]string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(cmd) {
		open := strings.IndexByte(cmd[i:], '{')
		if open == -1 {
			b.WriteString(cmd[i:])
			break
		}
		open += i
		b.WriteString(cmd[i:open])

		close := strings.IndexByte(cmd[open:], '}')
		if close == -1 {
			b.WriteString(cmd[open:])
			break
		}
		close += open

		name := cmd[open+1 : close]
		val, ok := params[name]
		if !ok {
			return "", &domain.ParameterMissingError{InstrumentID: instrumentID, ModeID: modeID, Parameter: name}
		}
		b.WriteString(val)
		i = close + 1
	}
	return b.String(), nil
}
