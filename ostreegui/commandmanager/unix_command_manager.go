package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 30 * time.Second

type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

// RealSSHClient dials with golang.org/x/crypto/ssh.
type RealSSHClient struct{}

func (RealSSHClient) Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	cfg := *config
	cfg.Timeout = timeout
	return ssh.Dial(network, addr, &cfg)
}

type UnixCommandManager struct {
	Hostname  string
	SSHClient SSHDialer
	Credentials

	// EscalationHelper prefixes escalated local commands. "sudo" is run as
	// "sudo -S" with SudoPassword on stdin; anything else is used verbatim.
	EscalationHelper string
}

func (u *UnixCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	argv := append([]string{config.Command}, config.Args...)
	var stdin string
	if config.Escalate {
		switch helper := u.EscalationHelper; helper {
		case "":
			log.WithField("command", config.Command).Warn("No escalation helper configured; running privileged command as the current user")
		case "sudo":
			argv = append([]string{"sudo", "-S"}, argv...)
			stdin = u.SudoPassword + "\n"
		default:
			argv = append([]string{helper}, argv...)
		}
	}

	// ctx only guards the start: a package transaction that began is never
	// killed halfway.
	if err := ctx.Err(); err != nil {
		return CommandResult{}, err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("command", strings.Join(argv, " ")).Debug("Executing local command")
	err := cmd.Run()

	result := CommandResult{
		Command:   strings.Join(argv, " "),
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, &InvocationError{Command: argv[0], Err: err}
	}

	warnOnSudoFailure(result)
	return result, nil
}

func (u *UnixCommandManager) getSSHConfig() (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod

	if u.Password != "" {
		log.WithField("hostname", u.Hostname).Debug("Using password authentication")
		authMethod = ssh.Password(u.Password)
	} else {
		log.WithField("hostname", u.Hostname).Debug("Using public key authentication")
		var keyManager SSHKeyManager
		if u.KeyPassphrase != "" {
			keyManager = FileSSHKeyManager{}
		} else {
			keyManager = AgentSSHKeyManager{}
		}

		keys, err := keyManager.ReadPrivateKeys(u.KeyPassphrase)
		if err != nil {
			return nil, err
		}

		authMethod = ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			return keys, nil
		})
	}

	hostKeyCallback, err := knownHostsCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            u.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func knownHostsCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}

func (u *UnixCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	log.WithFields(log.Fields{"hostname": u.Hostname, "command": config.Command}).Debug("Executing remote command")

	if u.SSHClient == nil {
		return CommandResult{}, &InvocationError{Command: config.Command, Err: errors.New("SSHClient is not initialized")}
	}

	sshConfig, err := u.getSSHConfig()
	if err != nil {
		return CommandResult{}, &InvocationError{Command: config.Command, Err: err}
	}

	dialTimeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	}

	client, err := u.SSHClient.Dial("tcp", u.address(), sshConfig, dialTimeout)
	if err != nil {
		return CommandResult{}, &InvocationError{Command: config.Command, Err: err}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, &InvocationError{Command: config.Command, Err: err}
	}
	defer session.Close()

	cmdStr := shellJoin(append([]string{config.Command}, config.Args...))
	if config.Escalate {
		cmdStr = "sudo -S " + cmdStr
		session.Stdin = strings.NewReader(u.SudoPassword + "\n")
	}

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		log.WithField("command", cmdStr).Warn("Interrupted; waiting for the remote command to finish")
		runErr = <-done
	}

	result := CommandResult{
		Command:   cmdStr,
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		log.WithFields(log.Fields{"command": cmdStr, "error": runErr}).Error("Failed to execute command over SSH")
		return result, &InvocationError{Command: config.Command, Err: runErr}
	}

	warnOnSudoFailure(result)
	return result, nil
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.isLocal() {
		return u.RunLocal(ctx, config)
	}
	return u.RunRemote(ctx, config)
}

func (u *UnixCommandManager) isLocal() bool {
	return u.Hostname == "" || u.Hostname == "localhost" || u.Hostname == "127.0.0.1"
}

func (u *UnixCommandManager) address() string {
	if _, _, err := net.SplitHostPort(u.Hostname); err == nil {
		return u.Hostname
	}
	return net.JoinHostPort(u.Hostname, "22")
}

func warnOnSudoFailure(result CommandResult) {
	if strings.Contains(result.STDERR, "incorrect password") {
		log.WithField("command", result.Command).Warn("sudo: incorrect password provided")
	}
	if strings.Contains(result.STDERR, "is not in the sudoers file") {
		log.WithField("command", result.Command).Warn("sudo: user is not in the sudoers file")
	}
}

// shellJoin quotes each word for a POSIX shell on the remote side.
func shellJoin(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		if w != "" && strings.IndexFunc(w, needsQuoting) < 0 {
			quoted[i] = w
			continue
		}
		quoted[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(w, "'", `'\''`))
	}
	return strings.Join(quoted, " ")
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_.+/:=@,", r)
}
