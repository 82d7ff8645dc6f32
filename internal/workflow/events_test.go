package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complyd/internal/validation"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSPublisher_Subject(t *testing.T) {
	p := NewNATSPublisher(nil, "", nil)
	assert.Equal(t, "complyd.runs.abc.stage.failed", p.Subject("abc", EventStageFailed))
}

func TestNATSPublisher_RunEvents(t *testing.T) {
	server := startTestNATSServer(t)

	pub, err := DialNATSPublisher(server.ClientURL(), "test", nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	ch := make(chan *nats.Msg, 16)
	s, err := sub.ChanSubscribe("test.runs.*.>", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	e, err := NewEngine(Deps{Generator: (&script{answer: "a"}).stub(), Publisher: pub}, Config{AutoApprove: true})
	require.NoError(t, err)
	e.RegisterHandler(failStage{StageSynthesize, assert.AnError})

	res, err := e.Run(context.Background(), "What is PCI DSS?", RunOptions{})
	require.NoError(t, err)

	subjects := map[string]Event{}
	timeout := time.After(2 * time.Second)
	for len(subjects) < 2 {
		select {
		case msg := <-ch:
			var ev Event
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			subjects[msg.Subject] = ev
		case <-timeout:
			t.Fatalf("timeout waiting for events, got %v", subjects)
		}
	}

	failed, ok := subjects["test.runs."+res.RunID+".stage.failed"]
	require.True(t, ok)
	assert.Equal(t, "synthesize", failed.Stage)
	assert.Contains(t, failed.Message, "Error in Answer Synthesis")

	done, ok := subjects["test.runs."+res.RunID+".completed"]
	require.True(t, ok)
	require.NotNil(t, done.Result)
	assert.Equal(t, res.RunID, done.Result.RunID)
	assert.Equal(t, validation.TierGood, done.Result.CitationQuality)
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewNATSPublisher(nc, "", nil).Publish(ctx, Event{RunID: "r", Type: EventCompleted})
	assert.ErrorIs(t, err, context.Canceled)
}
