package test_functional

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultImageURL = "https://upload.wikimedia.org/wikipedia/en/thumb/7/7b/Josh_Brolin_as_Thanos.jpeg/220px-Josh_Brolin_as_Thanos.jpeg"

func newClient() *resty.Client {
	return resty.New().SetRedirectPolicy(resty.NoRedirectPolicy())
}

func appURL(path string) string {
	u := AppBaseURL
	u.Path = path
	return u.String()
}

func TestUserLifecycle(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	cl := newClient()

	resp, err := cl.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"first-name": "test1_first",
			"last-name":  "test1_last",
			"img-url":    "",
		}).
		Post(appURL("/users/new"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())
	assert.Equal(t, "/users", resp.Header().Get("Location"))

	var (
		id       uint64
		imageURL string
	)
	err = DBConn.QueryRow(ctx, "SELECT id, image_url FROM users WHERE first_name=$1", "test1_first").Scan(&id, &imageURL)
	require.Nil(t, err)
	assert.Equal(t, defaultImageURL, imageURL)

	resp, err = cl.R().SetContext(ctx).Get(appURL("/users"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, resp.String(), "test1_first")
	assert.Contains(t, resp.String(), "test1_last")

	resp, err = cl.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"first-name": "renamed",
			"last-name":  "test1_last",
			"img-url":    "",
		}).
		Post(appURL("/users/" + itoa(id) + "/edit"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())

	var firstName string
	err = DBConn.QueryRow(ctx, "SELECT first_name FROM users WHERE id=$1", id).Scan(&firstName)
	require.Nil(t, err)
	assert.Equal(t, "renamed", firstName)

	resp, err = cl.R().SetContext(ctx).Post(appURL("/users/" + itoa(id) + "/delete"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM users WHERE id=$1", id).Scan(&count)
	require.Nil(t, err)
	assert.Equal(t, 0, count)
}

func TestUserDeleteCascadesToPosts(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	var userID uint64
	err := DBConn.QueryRow(ctx,
		"INSERT INTO users (first_name, last_name, image_url, created_at, updated_at) VALUES ('doomed', 'user', '', now(), now()) RETURNING id").
		Scan(&userID)
	require.Nil(t, err)
	var postID uint64
	err = DBConn.QueryRow(ctx,
		"INSERT INTO posts (title, content, user_id, created_at, updated_at) VALUES ('test_post', 'content', $1, now(), now()) RETURNING id", userID).
		Scan(&postID)
	require.Nil(t, err)

	cl := newClient()
	resp, err := cl.R().SetContext(ctx).Post(appURL("/users/" + itoa(userID) + "/delete"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM posts WHERE id=$1", postID).Scan(&count)
	require.Nil(t, err)
	assert.Equal(t, 0, count)

	resp, err = cl.R().SetContext(ctx).Get(appURL("/posts/" + itoa(postID)))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestPostDeleteKeepsUserAndTags(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	cl := newClient()

	var userID uint64
	err := DBConn.QueryRow(ctx,
		"INSERT INTO users (first_name, last_name, image_url, created_at, updated_at) VALUES ('keeper_first', 'keeper_last', '', now(), now()) RETURNING id").
		Scan(&userID)
	require.Nil(t, err)

	resp, err := cl.R().
		SetContext(ctx).
		SetFormData(map[string]string{"name": "survivor"}).
		Post(appURL("/tags/new"))
	require.Nil(t, err)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode())

	resp, err = cl.R().
		SetContext(ctx).
		SetFormDataFromValues(url.Values{
			"title":   {"test_post"},
			"content": {"content"},
			"tags":    {"survivor"},
		}).
		Post(appURL("/users/" + itoa(userID) + "/posts/new"))
	require.Nil(t, err)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode())

	var postID uint64
	err = DBConn.QueryRow(ctx, "SELECT id FROM posts WHERE title=$1", "test_post").Scan(&postID)
	require.Nil(t, err)

	resp, err = cl.R().SetContext(ctx).Post(appURL("/posts/" + itoa(postID) + "/delete"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())
	assert.Equal(t, "/users/"+itoa(userID), resp.Header().Get("Location"))

	resp, err = cl.R().SetContext(ctx).Get(appURL("/users/" + itoa(userID)))
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, resp.String(), "keeper_first")
	assert.NotContains(t, resp.String(), "test_post")

	resp, err = cl.R().SetContext(ctx).Get(appURL("/tags"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, resp.String(), "survivor")

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM posts_tags WHERE post_id=$1", postID).Scan(&count)
	require.Nil(t, err)
	assert.Equal(t, 0, count)
}

func TestTagDuplicateRejected(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	cl := newClient()

	resp, err := cl.R().
		SetContext(ctx).
		SetFormData(map[string]string{"name": "unique_tag"}).
		Post(appURL("/tags/new"))
	require.Nil(t, err)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode())
	assert.Equal(t, "/tags", resp.Header().Get("Location"))

	resp, err = cl.R().
		SetContext(ctx).
		SetFormData(map[string]string{"name": "unique_tag"}).
		Post(appURL("/tags/new"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode())
	assert.Equal(t, "/tags/new", resp.Header().Get("Location"))

	var count int
	err = DBConn.QueryRow(ctx, "SELECT count(*) FROM tags WHERE name=$1", "unique_tag").Scan(&count)
	require.Nil(t, err)
	assert.Equal(t, 1, count)
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
