package bangumi

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// DiagnoseConnectivity runs a best-effort DNS resolution and TCP connect
// check against a host and logs the findings for operator debugging. The
// outcome never changes control flow.
func DiagnoseConnectivity(logger *logrus.Logger, host string) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		logger.WithError(err).WithField("host", host).Warn("Connectivity diagnosis: DNS resolution failed")
		return
	}
	logger.WithFields(logrus.Fields{
		"host":  host,
		"addrs": addrs,
	}).Info("Connectivity diagnosis: DNS resolution succeeded")

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, "443"), 5*time.Second)
	if err != nil {
		logger.WithError(err).WithField("host", host).Warn("Connectivity diagnosis: TCP connect failed")
		return
	}
	conn.Close()
	logger.WithField("host", host).Info("Connectivity diagnosis: TCP connect succeeded")
}
