package tunnel

import (
	"context"
	"time"

	"golang.org/x/crypto/ssh"
)

// keepAlive sends "keepalive@openssh.com" every interval until ctx ends
// or a request fails, in which case onFail is called once.  A reply of
// "unsupported" still proves the connection is alive.
func keepAlive(ctx context.Context, client *ssh.Client, interval time.Duration, onFail func(error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				onFail(err)
				return
			}
		}
	}
}
