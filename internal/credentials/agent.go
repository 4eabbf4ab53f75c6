package credentials

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	unixNetworkConstant                       = "unix"
	agentRequestFailedTemplateConstant        = "%w: %w"
	agentAlgorithmUnsupportedTemplateConstant = "credentials: ssh agent signer does not support algorithm %s"
)

// agentConnector opens the SSH agent connection at most once and shares the
// resulting client. Requests are serialized and each runs under a connection
// deadline bounded by the contact timeout and the caller's context. A request
// that misses its deadline retires the connection for the rest of the run.
type agentConnector struct {
	socketPath     string
	contactTimeout time.Duration
	connectGuard   sync.Once
	connection     net.Conn
	client         agent.ExtendedAgent
	connectError   error
	requestMutex   sync.Mutex
	retiredError   error
}

func newAgentConnector(lookupEnvironment EnvironmentLookup, contactTimeout time.Duration) *agentConnector {
	socketPath, _ := lookupEnvironment(agentSocketEnvironmentConstant)
	return &agentConnector{socketPath: strings.TrimSpace(socketPath), contactTimeout: contactTimeout}
}

func (connector *agentConnector) connect() (agent.ExtendedAgent, error) {
	connector.connectGuard.Do(func() {
		if len(connector.socketPath) == 0 {
			connector.connectError = ErrAgentSocketNotConfigured
			return
		}
		connection, dialError := net.DialTimeout(unixNetworkConstant, connector.socketPath, connector.contactTimeout)
		if dialError != nil {
			connector.connectError = dialError
			return
		}
		connector.connection = connection
		connector.client = agent.NewClient(connection)
	})
	return connector.client, connector.connectError
}

// request runs one agent exchange under a deadline. Cancelling the context moves
// the deadline to now so a blocked read returns promptly.
func (connector *agentConnector) request(executionContext context.Context, exchange func(agent.ExtendedAgent) error) error {
	agentClient, connectError := connector.connect()
	if connectError != nil {
		return connectError
	}

	connector.requestMutex.Lock()
	defer connector.requestMutex.Unlock()

	if connector.retiredError != nil {
		return connector.retiredError
	}
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	deadline := time.Now().Add(connector.contactTimeout)
	if contextDeadline, hasDeadline := executionContext.Deadline(); hasDeadline && contextDeadline.Before(deadline) {
		deadline = contextDeadline
	}
	if deadlineError := connector.connection.SetDeadline(deadline); deadlineError != nil {
		return deadlineError
	}

	interrupted := make(chan struct{})
	stopInterrupt := context.AfterFunc(executionContext, func() {
		defer close(interrupted)
		_ = connector.connection.SetDeadline(time.Now())
	})
	exchangeError := exchange(agentClient)
	if !stopInterrupt() {
		<-interrupted
	}

	if exchangeError != nil && (executionContext.Err() != nil || !time.Now().Before(deadline)) {
		connector.retiredError = fmt.Errorf(agentRequestFailedTemplateConstant, ErrAgentUnresponsive, exchangeError)
		_ = connector.connection.Close()
		return connector.retiredError
	}
	_ = connector.connection.SetDeadline(time.Time{})
	return exchangeError
}

// signers returns a callback usable as ssh.PublicKeysCallback. The agent must hold
// at least one identity for the callback to be offered. The callback and the
// signers it returns issue their agent requests under executionContext.
func (connector *agentConnector) signers(executionContext context.Context) (func() ([]ssh.Signer, error), error) {
	var identities []*agent.Key
	listError := connector.request(executionContext, func(agentClient agent.ExtendedAgent) error {
		var exchangeError error
		identities, exchangeError = agentClient.List()
		return exchangeError
	})
	if listError != nil {
		return nil, listError
	}
	if len(identities) == 0 {
		return nil, ErrAgentHasNoIdentities
	}

	return func() ([]ssh.Signer, error) {
		var agentSigners []ssh.Signer
		signersError := connector.request(executionContext, func(agentClient agent.ExtendedAgent) error {
			var exchangeError error
			agentSigners, exchangeError = agentClient.Signers()
			return exchangeError
		})
		if signersError != nil {
			return nil, signersError
		}

		boundedSigners := make([]ssh.Signer, 0, len(agentSigners))
		for _, agentSigner := range agentSigners {
			boundedSigners = append(boundedSigners, &boundedAgentSigner{connector: connector, executionContext: executionContext, signer: agentSigner})
		}
		return boundedSigners, nil
	}, nil
}

// boundedAgentSigner routes signing requests through the connector deadline.
type boundedAgentSigner struct {
	connector        *agentConnector
	executionContext context.Context
	signer           ssh.Signer
}

func (signer *boundedAgentSigner) PublicKey() ssh.PublicKey {
	return signer.signer.PublicKey()
}

func (signer *boundedAgentSigner) Sign(random io.Reader, data []byte) (*ssh.Signature, error) {
	var signature *ssh.Signature
	signError := signer.connector.request(signer.executionContext, func(agent.ExtendedAgent) error {
		var exchangeError error
		signature, exchangeError = signer.signer.Sign(random, data)
		return exchangeError
	})
	return signature, signError
}

func (signer *boundedAgentSigner) SignWithAlgorithm(random io.Reader, data []byte, algorithm string) (*ssh.Signature, error) {
	algorithmSigner, supportsAlgorithms := signer.signer.(ssh.AlgorithmSigner)
	if !supportsAlgorithms {
		if len(algorithm) == 0 {
			return signer.Sign(random, data)
		}
		return nil, fmt.Errorf(agentAlgorithmUnsupportedTemplateConstant, algorithm)
	}

	var signature *ssh.Signature
	signError := signer.connector.request(signer.executionContext, func(agent.ExtendedAgent) error {
		var exchangeError error
		signature, exchangeError = algorithmSigner.SignWithAlgorithm(random, data, algorithm)
		return exchangeError
	})
	return signature, signError
}
