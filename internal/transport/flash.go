package transport

import (
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const flashSessionName = "blogly-flash"

func NewFlashStore(secret string) *sessions.CookieStore {
	return sessions.NewCookieStore([]byte(secret))
}

func (s *HTTPServer) Flash(c echo.Context, message string) error {
	sess, err := s.flashes.Get(c.Request(), flashSessionName)
	if err != nil {
		return err
	}
	sess.AddFlash(message)
	return sess.Save(c.Request(), c.Response())
}

// TakeFlashes returns and clears the pending flash messages.
func (s *HTTPServer) TakeFlashes(c echo.Context) []string {
	sess, err := s.flashes.Get(c.Request(), flashSessionName)
	if err != nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) != 0 {
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			s.logger.Errorw("save flash session", "error", err)
		}
	}
	messages := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}
