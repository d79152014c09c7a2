package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/paneflow/internal/logx"
	"pkt.systems/paneflow/ptyhost"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Server exposes pane attach over SSH. A client picks the pane with the
// SSH command (`ssh host -- work/build`); without one it lands in
// `<user>/main`.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Panes       *ptyhost.Manager
	AuthStore   LoginAuthStore
	logger      pslog.Logger
}

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	HasAuthorizedKey(userID schema.UserID, key ssh.PublicKey) (bool, error)
	ValidateTOTP(username string, totpCode string) error
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Panes == nil {
		return errors.New("pane manager is required for SSH")
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	userID := schema.UserID(ctx.User())
	sshSession := ctx.SessionID()
	if userID == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user", "remote", remote, "ssh_session", sshSession, "fingerprint", fingerprint)
		return false
	}
	log = log.With("user", userID, "remote", remote, "fingerprint", fingerprint)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ok, err := s.AuthStore.HasAuthorizedKey(userID, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted")
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	remote := remoteAddr(ctx)
	userID := schema.UserID(ctx.User())
	sshSession := ctx.SessionID()
	if userID != "" {
		log = log.With("user", userID, "remote", remote)
		if sshSession != "" {
			log = log.With("ssh_session", sshSession)
		}
	}
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(ctx.User(), answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	userID := schema.UserID(sess.User())
	if userID == "" {
		log.Info("ssh session rejected", "reason", "missing user", "remote", sess.RemoteAddr().String())
		_, _ = io.WriteString(sess, "missing user\n")
		return
	}
	remote := sess.RemoteAddr().String()
	sshSession := sess.Context().SessionID()
	log = logx.WithUser(log, userID).With("remote", remote)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	paneID := panePick(userID, sess.Command())
	log = log.With("pane", paneID)
	ctx := pslog.ContextWithLogger(sess.Context(), log)

	pane, err := s.Panes.Pane(ctx, paneID)
	if err != nil {
		log.Warn("ssh attach failed", "err", err)
		_, _ = io.WriteString(sess, "attach failed\n")
		return
	}

	log.Info("ssh session attached", "term", pty.Term)
	detach := pane.Emu.Attach(sess)
	defer detach()

	s.applySize(pane, pty.Window.Width, pty.Window.Height)
	go func() {
		for win := range winCh {
			s.applySize(pane, win.Width, win.Height)
		}
	}()

	// Input pump; returns when the client disconnects or the pane dies.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(pane.Host, sess)
	}()
	select {
	case <-done:
	case <-pane.Host.Done():
	case <-ctx.Done():
	}
	log.Info("ssh session detached", "term", pty.Term)
}

func (s *Server) applySize(pane *ptyhost.Pane, cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	pane.Emu.SetGeometry(schema.Geometry{Cols: cols, Rows: rows})
	if err := pane.Host.Resize(cols, rows); err != nil && s.logger != nil {
		s.logger.Warn("ssh resize failed", "pane", pane.ID, "err", err)
	}
}

func panePick(userID schema.UserID, command []string) schema.PaneID {
	if len(command) > 0 && command[0] != "" {
		return schema.PaneID(command[0])
	}
	return schema.PaneID(string(userID) + "/main")
}
