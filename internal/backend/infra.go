package backend

import (
	"fmt"

	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/pkg/models"
)

// Shared infrastructure ports on the head node.
const (
	NATSPort = 4222
	EtcdPort = 2379
)

// NATSSpec builds the launch spec for the message broker on the head node.
// Workers discover it through NATS_SERVER in their environment.
func NATSSpec(rc *runtime.Context) models.LaunchSpec {
	node := rc.HeadNode()
	logPath := rc.FrontendLogPath("nats", node)
	return models.LaunchSpec{
		Name:       "nats",
		Node:       node,
		Command:    []string{"nats-server", "--jetstream", "--port", fmt.Sprint(NATSPort)},
		StdoutPath: logPath,
		StderrPath: logPath,
	}
}

// EtcdSpec builds the launch spec for the coordination store on the head
// node. Its data directory lives under the job's log directory so repeated
// jobs never collide.
func EtcdSpec(rc *runtime.Context) models.LaunchSpec {
	node := rc.HeadNode()
	logPath := rc.FrontendLogPath("etcd", node)
	clientURL := fmt.Sprintf("http://0.0.0.0:%d", EtcdPort)
	advertiseURL := fmt.Sprintf("http://%s:%d", node, EtcdPort)
	return models.LaunchSpec{
		Name: "etcd",
		Node: node,
		Command: []string{
			"etcd",
			"--data-dir", rc.LogDir + "/etcd-data",
			"--listen-client-urls", clientURL,
			"--advertise-client-urls", advertiseURL,
		},
		StdoutPath: logPath,
		StderrPath: logPath,
	}
}
