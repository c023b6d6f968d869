package session

import "io"

// Telnet bytes that may appear on an FTP control connection.
const (
	iac  = 0xFF // interpret as command
	will = 0xFB
	wont = 0xFC
	do   = 0xFD
	dont = 0xFE
)

type telnetState uint8

const (
	tsData   telnetState = iota
	tsIAC                // saw IAC
	tsOption             // saw IAC WILL/WONT/DO/DONT, skip option byte
)

// telnetFilter removes Telnet negotiation from a byte stream.  IAC IAC
// becomes a literal 0xFF; every other IAC sequence is dropped.  State is
// kept across reads so a sequence split between packets is still
// recognised.
type telnetFilter struct {
	r     io.Reader
	state telnetState
}

func newTelnetFilter(r io.Reader) *telnetFilter {
	return &telnetFilter{r: r}
}

func (t *telnetFilter) Read(p []byte) (int, error) {
	for {
		n, err := t.r.Read(p)
		n = t.filter(p[:n])
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// filter compacts b in place and returns the number of data bytes kept.
func (t *telnetFilter) filter(b []byte) int {
	out := 0
	for _, c := range b {
		switch t.state {
		case tsData:
			if c == iac {
				t.state = tsIAC
				continue
			}
			b[out] = c
			out++
		case tsIAC:
			switch c {
			case iac:
				b[out] = iac
				out++
				t.state = tsData
			case will, wont, do, dont:
				t.state = tsOption
			default:
				t.state = tsData
			}
		case tsOption:
			t.state = tsData
		}
	}
	return out
}
