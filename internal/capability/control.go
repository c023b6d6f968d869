package capability

import (
	"context"
	"net"
	"time"

	"goftpd/internal/fsys"
	"goftpd/internal/metrics"
	"goftpd/internal/session"
	"goftpd/util"
)

// Control serves the FTP control channel: one session.Session per
// connection, all sharing the same root and filesystem adapter.
type Control struct {
	RootDir     string
	Welcome     string
	FS          fsys.Adapter
	IdleTimeout time.Duration
	CommandRate float64

	Metrics  *metrics.Collector // optional
	Logger   *util.Logger       // optional
	Observer session.Observer   // optional, receives events after metrics and logging
}

// Handle runs a session on conn and folds its byte counts into Metrics.
func (c *Control) Handle(ctx context.Context, conn net.Conn) error {
	cc := util.NewCountingConn(conn)
	defer func() {
		c.Metrics.BytesReceived(cc.BytesIn())
		c.Metrics.BytesSent(cc.BytesOut())
	}()

	obs := session.Observers{c.Metrics}
	if c.Logger != nil {
		obs = append(obs, session.LogObserver{Logger: c.Logger})
	}
	obs = append(obs, c.Observer)

	s, err := session.New(cc, session.Options{
		RootDir:     c.RootDir,
		Welcome:     c.Welcome,
		FS:          c.FS,
		Observer:    obs,
		Remote:      remoteAddr(conn),
		IdleTimeout: c.IdleTimeout,
		CommandRate: c.CommandRate,
	})
	if err != nil {
		conn.Close()
		return err
	}
	return s.Serve(ctx)
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
