package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bloglyhq/blogly/internal/config"
	"github.com/bloglyhq/blogly/internal/service"
)

type (
	UserForm struct {
		FirstName string `form:"first-name" validate:"max=15"`
		LastName  string `form:"last-name" validate:"max=15"`
		ImageURL  string `form:"img-url"`
	}

	PostForm struct {
		Title   string   `form:"title" validate:"required,max=100"`
		Content string   `form:"content" validate:"required"`
		Tags    []string `form:"tags"`
	}

	TagForm struct {
		Name string `form:"name" validate:"required"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		svc     *service.Blog
		logger  *zap.SugaredLogger
		flashes *sessions.CookieStore
	}
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, svc *service.Blog, logger *zap.SugaredLogger) (*HTTPServer, error) {
	e := echo.New()

	instance := HTTPServer{
		svc:     svc,
		logger:  logger,
		flashes: NewFlashStore(cfg.SecretKey),
	}

	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}
	e.Renderer = renderer

	instance.RegisterRoutes(e)

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(instance.RequestLogger)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance, nil
}

func (s *HTTPServer) RegisterRoutes(e *echo.Echo) {
	e.GET("/", s.Home)

	e.GET("/users", s.UserList)
	e.GET("/users/new", s.UserNewForm)
	e.POST("/users/new", s.UserCreate)
	e.GET("/users/:id", s.UserDetail)
	e.GET("/users/:id/edit", s.UserEditForm)
	e.POST("/users/:id/edit", s.UserUpdate)
	e.POST("/users/:id/delete", s.UserDelete)
	e.GET("/users/:id/posts/new", s.PostNewForm)
	e.POST("/users/:id/posts/new", s.PostCreate)

	e.GET("/posts/:id", s.PostDetail)
	e.GET("/posts/:id/edit", s.PostEditForm)
	e.POST("/posts/:id/edit", s.PostUpdate)
	e.POST("/posts/:id/delete", s.PostDelete)

	e.GET("/tags", s.TagList)
	e.GET("/tags/new", s.TagNewForm)
	e.POST("/tags/new", s.TagCreate)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func (s *HTTPServer) Home(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/users")
}

func (s *HTTPServer) UserList(c echo.Context) error {
	users, err := s.svc.UserList()
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "users.html", echo.Map{"users": users})
}

func (s *HTTPServer) UserNewForm(c echo.Context) error {
	return c.Render(http.StatusOK, "user_new.html", nil)
}

func (s *HTTPServer) UserCreate(c echo.Context) error {
	req := UserForm{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := s.svc.UserCreate(req.FirstName, req.LastName, req.ImageURL); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/users")
}

func (s *HTTPServer) UserDetail(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	user, err := s.svc.UserGet(id)
	if err != nil {
		return MapServiceError(err)
	}
	return c.Render(http.StatusOK, "user_detail.html", echo.Map{
		"user":  user,
		"posts": user.Posts,
	})
}

func (s *HTTPServer) UserEditForm(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	user, err := s.svc.UserGet(id)
	if err != nil {
		return MapServiceError(err)
	}
	return c.Render(http.StatusOK, "user_edit.html", echo.Map{"user": user})
}

func (s *HTTPServer) UserUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := UserForm{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := s.svc.UserUpdate(id, req.FirstName, req.LastName, req.ImageURL); err != nil {
		return MapServiceError(err)
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/users/%d", id))
}

func (s *HTTPServer) UserDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.svc.UserDelete(id); err != nil {
		return MapServiceError(err)
	}
	return c.Redirect(http.StatusSeeOther, "/users")
}

func (s *HTTPServer) PostNewForm(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	user, err := s.svc.UserGet(id)
	if err != nil {
		return MapServiceError(err)
	}
	tags, err := s.svc.TagList()
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "post_new.html", echo.Map{
		"user": user,
		"tags": tags,
	})
}

func (s *HTTPServer) PostCreate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := PostForm{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := s.svc.PostCreate(id, req.Title, req.Content, req.Tags); err != nil {
		return MapServiceError(err)
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/users/%d", id))
}

func (s *HTTPServer) PostDetail(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	post, err := s.svc.PostGet(id)
	if err != nil {
		return MapServiceError(err)
	}
	return c.Render(http.StatusOK, "post_detail.html", echo.Map{
		"post": post,
		"user": post.User,
		"tags": post.Tags,
	})
}

func (s *HTTPServer) PostEditForm(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	post, err := s.svc.PostGet(id)
	if err != nil {
		return MapServiceError(err)
	}
	return c.Render(http.StatusOK, "post_edit.html", echo.Map{"post": post})
}

func (s *HTTPServer) PostUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := PostForm{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := s.svc.PostUpdate(id, req.Title, req.Content); err != nil {
		return MapServiceError(err)
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/posts/%d", id))
}

func (s *HTTPServer) PostDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	ownerID, err := s.svc.PostDelete(id)
	if err != nil {
		return MapServiceError(err)
	}
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/users/%d", ownerID))
}

func (s *HTTPServer) TagList(c echo.Context) error {
	tags, err := s.svc.TagList()
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "tags.html", echo.Map{"tags": tags})
}

func (s *HTTPServer) TagNewForm(c echo.Context) error {
	return c.Render(http.StatusOK, "tag_new.html", echo.Map{
		"flashes": s.TakeFlashes(c),
	})
}

func (s *HTTPServer) TagCreate(c echo.Context) error {
	req := TagForm{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := s.svc.TagCreate(req.Name); err != nil {
		if errors.Cause(err) == service.ErrDuplicateTag {
			if err := s.Flash(c, fmt.Sprintf("Tag %q already exists.", req.Name)); err != nil {
				s.logger.Errorw("set flash", "error", err)
			}
			return c.Redirect(http.StatusSeeOther, "/tags/new")
		}
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/tags")
}

func (s *HTTPServer) RequestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := uuid.New().String()
		c.Response().Header().Set("X-Request-Id", reqID)

		start := time.Now()
		err := next(c)

		s.logger.Infow("request",
			"id", reqID,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start),
		)
		return err
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// MapServiceError converts service sentinels into the statuses the routes
// promise: 404 for missing rows, 400 for bad references and duplicate titles.
func MapServiceError(err error) error {
	switch errors.Cause(err) {
	case service.ErrNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case service.ErrUnknownTag, service.ErrDuplicateTitle:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param 'id'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, e
	}
	return vv, nil
}
