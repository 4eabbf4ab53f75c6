package credentials_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"iter"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v6/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v6/plumbing/transport/ssh"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/execshell"
	"github.com/temirov/gfold/internal/gitrepo"
)

const (
	testSSHRemoteConstant          = "git@github.com:temirov/gfold.git"
	testHTTPSRemoteConstant        = "https://github.com/temirov/gfold.git"
	testFileRemoteConstant         = "/srv/git/gfold.git"
	testExplicitTokenConstant      = "explicit-token"
	testBasicUsernameConstant      = "deploy"
	testBasicPasswordConstant      = "secret"
	testHelperUsernameConstant     = "helper-user"
	testHelperPasswordConstant     = "helper-pass"
	testKeyPassphraseConstant      = "correct horse"
	testSubtestTemplateConstant    = "%d_%s"
	testSSHDirectoryNameConstant   = ".ssh"
	testWorkKeyFileNameConstant    = "work_key"
	testEd25519KeyFileNameConstant = "id_ed25519"
	testRSAKeyFileNameConstant     = "id_rsa"
	testAgentSocketNameConstant    = "agent.sock"
	testSequenceDeadlineConstant   = 3 * time.Second
)

type recordingGitExecutor struct {
	executionResult execshell.ExecutionResult
	executionError  error
	recordedDetails []execshell.CommandDetails
}

func (executor *recordingGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedDetails = append(executor.recordedDetails, details)
	return executor.executionResult, executor.executionError
}

func locateAlways(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

func environmentFrom(values map[string]string) credentials.EnvironmentLookup {
	return func(key string) (string, bool) {
		value, exists := values[key]
		return value, exists
	}
}

func parseEndpoint(testInstance *testing.T, remote string) gitrepo.RemoteEndpoint {
	testInstance.Helper()
	endpoint, parseError := gitrepo.ParseRemoteURL(remote)
	require.NoError(testInstance, parseError)
	return endpoint
}

func collectKinds(sequence iter.Seq[credentials.Candidate]) ([]credentials.Kind, []credentials.Candidate) {
	var kinds []credentials.Kind
	var candidates []credentials.Candidate
	for candidate := range sequence {
		kinds = append(kinds, candidate.Kind)
		candidates = append(candidates, candidate)
	}
	return kinds, candidates
}

func writePrivateKey(testInstance *testing.T, keyPath string, passphrase string) {
	testInstance.Helper()
	_, privateKey, generateError := ed25519.GenerateKey(rand.Reader)
	require.NoError(testInstance, generateError)

	var pemBlock *pem.Block
	var marshalError error
	if len(passphrase) > 0 {
		pemBlock, marshalError = ssh.MarshalPrivateKeyWithPassphrase(privateKey, "", []byte(passphrase))
	} else {
		pemBlock, marshalError = ssh.MarshalPrivateKey(privateKey, "")
	}
	require.NoError(testInstance, marshalError)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(keyPath), 0o700))
	require.NoError(testInstance, os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0o600))
}

func serveTestAgent(testInstance *testing.T, identityCount int) string {
	testInstance.Helper()
	socketDirectory, directoryError := os.MkdirTemp("", "gfold-agent")
	require.NoError(testInstance, directoryError)
	testInstance.Cleanup(func() { _ = os.RemoveAll(socketDirectory) })

	keyring := agent.NewKeyring()
	for identityIndex := 0; identityIndex < identityCount; identityIndex++ {
		_, privateKey, generateError := ed25519.GenerateKey(rand.Reader)
		require.NoError(testInstance, generateError)
		require.NoError(testInstance, keyring.Add(agent.AddedKey{PrivateKey: privateKey}))
	}

	socketPath := filepath.Join(socketDirectory, testAgentSocketNameConstant)
	listener, listenError := net.Listen("unix", socketPath)
	require.NoError(testInstance, listenError)
	testInstance.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			go func() {
				defer connection.Close()
				_ = agent.ServeAgent(keyring, connection)
			}()
		}
	}()
	return socketPath
}

// serveSilentAgent accepts agent connections and never answers a request.
func serveSilentAgent(testInstance *testing.T) string {
	testInstance.Helper()
	socketDirectory, directoryError := os.MkdirTemp("", "gfold-agent")
	require.NoError(testInstance, directoryError)
	testInstance.Cleanup(func() { _ = os.RemoveAll(socketDirectory) })

	socketPath := filepath.Join(socketDirectory, testAgentSocketNameConstant)
	listener, listenError := net.Listen("unix", socketPath)
	require.NoError(testInstance, listenError)
	released := make(chan struct{})
	testInstance.Cleanup(func() {
		close(released)
		_ = listener.Close()
	})

	go func() {
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			go func() {
				defer connection.Close()
				<-released
			}()
		}
	}()
	return socketPath
}

// collectWithin drains the sequence, failing the test when it does not finish before the deadline.
func collectWithin(testInstance *testing.T, sequence iter.Seq[credentials.Candidate]) []credentials.Kind {
	testInstance.Helper()
	collected := make(chan []credentials.Kind, 1)
	go func() {
		kinds, _ := collectKinds(sequence)
		collected <- kinds
	}()

	select {
	case kinds := <-collected:
		return kinds
	case <-time.After(testSequenceDeadlineConstant):
		require.FailNow(testInstance, "candidate sequence did not finish")
		return nil
	}
}

func TestHTTPSCandidateOrdering(testInstance *testing.T) {
	helperOutput := fmt.Sprintf("protocol=https\nhost=github.com\nusername=%s\npassword=%s\n", testHelperUsernameConstant, testHelperPasswordConstant)

	testCases := []struct {
		name          string
		options       credentials.Options
		environment   map[string]string
		helperResult  execshell.ExecutionResult
		helperError   error
		expectedKinds []credentials.Kind
	}{
		{
			name: "every_source_available",
			options: credentials.Options{
				Token:               testExplicitTokenConstant,
				Username:            testBasicUsernameConstant,
				Password:            testBasicPasswordConstant,
				UseCredentialHelper: true,
			},
			helperResult: execshell.ExecutionResult{StandardOutput: helperOutput},
			expectedKinds: []credentials.Kind{
				credentials.KindHTTPSToken,
				credentials.KindHTTPSBasic,
				credentials.KindHTTPSCredentialHelper,
				credentials.KindAnonymous,
			},
		},
		{
			name:          "environment_token_only",
			environment:   map[string]string{credentials.EnvGitHubToken: "environment-token"},
			expectedKinds: []credentials.Kind{credentials.KindHTTPSToken, credentials.KindAnonymous},
		},
		{
			name:          "helper_disabled",
			options:       credentials.Options{UseCredentialHelper: false},
			helperResult:  execshell.ExecutionResult{StandardOutput: helperOutput},
			expectedKinds: []credentials.Kind{credentials.KindAnonymous},
		},
		{
			name:          "helper_failure_is_skipped",
			options:       credentials.Options{UseCredentialHelper: true},
			helperError:   errors.New("helper crashed"),
			expectedKinds: []credentials.Kind{credentials.KindAnonymous},
		},
		{
			name:          "helper_without_password_is_skipped",
			options:       credentials.Options{UseCredentialHelper: true},
			helperResult:  execshell.ExecutionResult{StandardOutput: "username=someone\n"},
			expectedKinds: []credentials.Kind{credentials.KindAnonymous},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			executor := &recordingGitExecutor{executionResult: testCase.helperResult, executionError: testCase.helperError}
			options := testCase.options
			options.HomeDirectory = testInstance.TempDir()
			options.LookupEnvironment = environmentFrom(testCase.environment)

			resolver := credentials.NewResolver(options, zaptest.NewLogger(testInstance), credentials.NewCredentialHelper(executor, locateAlways))
			kinds, candidates := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, testHTTPSRemoteConstant)))
			require.Equal(testInstance, testCase.expectedKinds, kinds)

			for _, candidate := range candidates {
				if candidate.IsAnonymous() {
					require.Nil(testInstance, candidate.AuthMethod())
					continue
				}
				require.IsType(testInstance, &http.BasicAuth{}, candidate.AuthMethod())
			}
		})
	}
}

func TestHTTPSCandidateMaterial(testInstance *testing.T) {
	executor := &recordingGitExecutor{executionResult: execshell.ExecutionResult{
		StandardOutput: fmt.Sprintf("username=%s\npassword=%s\n", testHelperUsernameConstant, testHelperPasswordConstant),
	}}
	resolver := credentials.NewResolver(credentials.Options{
		Token:               testExplicitTokenConstant,
		UseCredentialHelper: true,
		HomeDirectory:       testInstance.TempDir(),
		LookupEnvironment:   environmentFrom(nil),
	}, zaptest.NewLogger(testInstance), credentials.NewCredentialHelper(executor, locateAlways))

	_, candidates := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, testHTTPSRemoteConstant)))
	require.Len(testInstance, candidates, 3)

	tokenAuth, isBasic := candidates[0].AuthMethod().(*http.BasicAuth)
	require.True(testInstance, isBasic)
	require.Equal(testInstance, "x-access-token", tokenAuth.Username)
	require.Equal(testInstance, testExplicitTokenConstant, tokenAuth.Password)

	helperAuth, isHelperBasic := candidates[1].AuthMethod().(*http.BasicAuth)
	require.True(testInstance, isHelperBasic)
	require.Equal(testInstance, testHelperUsernameConstant, helperAuth.Username)
	require.Equal(testInstance, testHelperPasswordConstant, helperAuth.Password)

	require.Len(testInstance, executor.recordedDetails, 1)
	recordedDetails := executor.recordedDetails[0]
	require.Equal(testInstance, []string{"credential", "fill"}, recordedDetails.Arguments)
	require.Equal(testInstance, "protocol=https\nhost=github.com\npath=temirov/gfold.git\n\n", string(recordedDetails.StandardInput))
	require.Equal(testInstance, "0", recordedDetails.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
}

func TestCandidatesAreEvaluatedLazily(testInstance *testing.T) {
	executor := &recordingGitExecutor{executionResult: execshell.ExecutionResult{StandardOutput: "username=a\npassword=b\n"}}
	resolver := credentials.NewResolver(credentials.Options{
		Token:               testExplicitTokenConstant,
		UseCredentialHelper: true,
		HomeDirectory:       testInstance.TempDir(),
		LookupEnvironment:   environmentFrom(nil),
	}, zaptest.NewLogger(testInstance), credentials.NewCredentialHelper(executor, locateAlways))

	for candidate := range resolver.Candidates(context.Background(), parseEndpoint(testInstance, testHTTPSRemoteConstant)) {
		require.Equal(testInstance, credentials.KindHTTPSToken, candidate.Kind)
		break
	}
	require.Empty(testInstance, executor.recordedDetails)
}

func TestCredentialHelperRequiresGitExecutable(testInstance *testing.T) {
	executor := &recordingGitExecutor{}
	helper := credentials.NewCredentialHelper(executor, func(string) (string, error) { return "", errors.New("not found") })
	_, fillError := helper.Fill(context.Background(), parseEndpoint(testInstance, testHTTPSRemoteConstant))
	require.ErrorIs(testInstance, fillError, credentials.ErrGitExecutableNotFound)
	require.Empty(testInstance, executor.recordedDetails)
}

func TestNonAuthenticatedTransportsYieldAnonymousOnly(testInstance *testing.T) {
	resolver := credentials.NewResolver(credentials.Options{
		Token:             testExplicitTokenConstant,
		HomeDirectory:     testInstance.TempDir(),
		LookupEnvironment: environmentFrom(nil),
	}, zaptest.NewLogger(testInstance), nil)

	fileEndpoint := parseEndpoint(testInstance, testFileRemoteConstant)
	kinds, _ := collectKinds(resolver.Candidates(context.Background(), fileEndpoint))
	require.Equal(testInstance, []credentials.Kind{credentials.KindAnonymous}, kinds)
	require.False(testInstance, credentials.RequiresCredentials(fileEndpoint))
	require.True(testInstance, credentials.RequiresCredentials(parseEndpoint(testInstance, testSSHRemoteConstant)))
}

func TestSSHCandidateOrdering(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	sshDirectory := filepath.Join(homeDirectory, testSSHDirectoryNameConstant)
	workKeyPath := filepath.Join(sshDirectory, testWorkKeyFileNameConstant)
	defaultKeyPath := filepath.Join(sshDirectory, testEd25519KeyFileNameConstant)
	writePrivateKey(testInstance, workKeyPath, "")
	writePrivateKey(testInstance, defaultKeyPath, "")

	sshConfiguration := fmt.Sprintf("Host *.example.com github.com\n  User deploy\n  IdentityFile ~/.ssh/%s\n  IdentityFile ~/.ssh/%s\n\nHost other\n  IdentityFile ~/.ssh/unused\n", testWorkKeyFileNameConstant, testEd25519KeyFileNameConstant)
	require.NoError(testInstance, os.WriteFile(filepath.Join(sshDirectory, "config"), []byte(sshConfiguration), 0o600))

	socketPath := serveTestAgent(testInstance, 1)
	resolver := credentials.NewResolver(credentials.Options{
		HomeDirectory:     homeDirectory,
		LookupEnvironment: environmentFrom(map[string]string{"SSH_AUTH_SOCK": socketPath}),
	}, zaptest.NewLogger(testInstance), nil)

	kinds, candidates := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, "ssh://git.example.com/team/repo.git")))
	require.Equal(testInstance, []credentials.Kind{credentials.KindSSHAgent, credentials.KindSSHKey, credentials.KindSSHKey}, kinds)

	agentMethod, isCallback := candidates[0].AuthMethod().(*gitssh.PublicKeysCallback)
	require.True(testInstance, isCallback)
	require.Equal(testInstance, "deploy", agentMethod.User)
	signers, signersError := agentMethod.Callback()
	require.NoError(testInstance, signersError)
	require.Len(testInstance, signers, 1)

	require.Contains(testInstance, candidates[1].Description, workKeyPath)
	require.Contains(testInstance, candidates[2].Description, defaultKeyPath)
	keyMethod, isPublicKeys := candidates[1].AuthMethod().(*gitssh.PublicKeys)
	require.True(testInstance, isPublicKeys)
	require.Equal(testInstance, "deploy", keyMethod.User)
}

func TestSSHCandidatesWithoutAgentUseDefaultKeys(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	sshDirectory := filepath.Join(homeDirectory, testSSHDirectoryNameConstant)
	rsaSlotPath := filepath.Join(sshDirectory, testRSAKeyFileNameConstant)
	extraKeyPath := filepath.Join(homeDirectory, "extra_key")
	writePrivateKey(testInstance, rsaSlotPath, "")
	writePrivateKey(testInstance, extraKeyPath, "")

	resolver := credentials.NewResolver(credentials.Options{
		HomeDirectory:     homeDirectory,
		IdentityFiles:     []string{"~/extra_key"},
		LookupEnvironment: environmentFrom(nil),
	}, zaptest.NewLogger(testInstance), nil)

	kinds, candidates := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, testSSHRemoteConstant)))
	require.Equal(testInstance, []credentials.Kind{credentials.KindSSHKey, credentials.KindSSHKey}, kinds)
	require.Contains(testInstance, candidates[0].Description, rsaSlotPath)
	require.Contains(testInstance, candidates[1].Description, extraKeyPath)

	keyMethod, isPublicKeys := candidates[0].AuthMethod().(*gitssh.PublicKeys)
	require.True(testInstance, isPublicKeys)
	require.Equal(testInstance, "git", keyMethod.User)
}

func TestSSHAgentWithoutIdentitiesIsSkipped(testInstance *testing.T) {
	socketPath := serveTestAgent(testInstance, 0)
	resolver := credentials.NewResolver(credentials.Options{
		HomeDirectory:     testInstance.TempDir(),
		LookupEnvironment: environmentFrom(map[string]string{"SSH_AUTH_SOCK": socketPath}),
	}, zaptest.NewLogger(testInstance), nil)

	kinds, _ := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, testSSHRemoteConstant)))
	require.Empty(testInstance, kinds)
}

func TestSSHAgentThatNeverRespondsIsBounded(testInstance *testing.T) {
	testCases := []struct {
		name           string
		contactTimeout time.Duration
		contextTimeout time.Duration
	}{
		{name: "contact_timeout", contactTimeout: 200 * time.Millisecond},
		{name: "context_deadline", contactTimeout: time.Minute, contextTimeout: 300 * time.Millisecond},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			homeDirectory := testInstance.TempDir()
			defaultKeyPath := filepath.Join(homeDirectory, testSSHDirectoryNameConstant, testEd25519KeyFileNameConstant)
			writePrivateKey(testInstance, defaultKeyPath, "")

			resolver := credentials.NewResolver(credentials.Options{
				HomeDirectory:     homeDirectory,
				ContactTimeout:    testCase.contactTimeout,
				LookupEnvironment: environmentFrom(map[string]string{"SSH_AUTH_SOCK": serveSilentAgent(testInstance)}),
			}, zaptest.NewLogger(testInstance), nil)

			candidateContext := context.Background()
			if testCase.contextTimeout > 0 {
				var cancelCandidates context.CancelFunc
				candidateContext, cancelCandidates = context.WithTimeout(context.Background(), testCase.contextTimeout)
				defer cancelCandidates()
			}

			kinds := collectWithin(testInstance, resolver.Candidates(candidateContext, parseEndpoint(testInstance, testSSHRemoteConstant)))
			require.NotContains(testInstance, kinds, credentials.KindSSHAgent)
			if testCase.contextTimeout == 0 {
				require.Equal(testInstance, []credentials.Kind{credentials.KindSSHKey}, kinds)
			}

			retiredKinds := collectWithin(testInstance, resolver.Candidates(context.Background(), parseEndpoint(testInstance, testSSHRemoteConstant)))
			require.Equal(testInstance, []credentials.Kind{credentials.KindSSHKey}, retiredKinds)
		})
	}
}

func TestSSHCandidatesStopWhenContextIsCancelled(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	writePrivateKey(testInstance, filepath.Join(homeDirectory, testSSHDirectoryNameConstant, testEd25519KeyFileNameConstant), "")
	resolver := credentials.NewResolver(credentials.Options{
		HomeDirectory:     homeDirectory,
		LookupEnvironment: environmentFrom(map[string]string{"SSH_AUTH_SOCK": serveTestAgent(testInstance, 1)}),
	}, zaptest.NewLogger(testInstance), nil)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	kinds := collectWithin(testInstance, resolver.Candidates(cancelledContext, parseEndpoint(testInstance, testSSHRemoteConstant)))
	require.Empty(testInstance, kinds)
}

func TestSSHKeyPassphraseHandling(testInstance *testing.T) {
	testCases := []struct {
		name          string
		passphrase    string
		expectedCount int
	}{
		{name: "matching_passphrase", passphrase: testKeyPassphraseConstant, expectedCount: 1},
		{name: "missing_passphrase", passphrase: "", expectedCount: 0},
		{name: "wrong_passphrase", passphrase: "wrong", expectedCount: 0},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			homeDirectory := testInstance.TempDir()
			writePrivateKey(testInstance, filepath.Join(homeDirectory, testSSHDirectoryNameConstant, testEd25519KeyFileNameConstant), testKeyPassphraseConstant)

			resolver := credentials.NewResolver(credentials.Options{
				HomeDirectory:     homeDirectory,
				KeyPassphrase:     testCase.passphrase,
				LookupEnvironment: environmentFrom(nil),
			}, zaptest.NewLogger(testInstance), nil)

			kinds, _ := collectKinds(resolver.Candidates(context.Background(), parseEndpoint(testInstance, testSSHRemoteConstant)))
			require.Len(testInstance, kinds, testCase.expectedCount)
		})
	}
}
