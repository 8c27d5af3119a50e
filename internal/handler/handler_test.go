package handler

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	commonMiddleware "github.com/superfm831010/SQLBothp/common/middleware"
	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, app *fiber.App, method, path, body string) (int, response.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out, err := utils.FromJSON[response.Response](string(data))
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestFail_MapsErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"not found", types.ErrNotFound, http.StatusNotFound, response.CodeNotFound, "记录不存在"},
		{"invalid", types.NewAppError(types.ErrCodeInvalidParameter, "问题不能为空"), http.StatusBadRequest, response.CodeBadRequest, "问题不能为空"},
		{"lineage", types.NewAppErrorWithDetails(types.ErrCodeLineage, "记录关联关系无效", "analysis"), http.StatusBadRequest, response.CodeBadRequest, "记录关联关系无效: analysis"},
		{"stage", types.StageFailure("sql", "未生成 SQL", nil), http.StatusOK, response.CodeError, "未生成 SQL: sql"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, response.CodeServerError, "server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(commonMiddleware.RequestID())
			app.Get("/", func(c *fiber.Ctx) error { return fail(c, tc.err) })

			status, body := do(t, app, http.MethodGet, "/", "")
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.msg, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestParamID(t *testing.T) {
	app := fiber.New()
	app.Get("/:id", func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return response.BadRequest(c, "")
		}
		return response.Success(c, id)
	})

	status, body := do(t, app, http.MethodGet, "/42", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 42, body.Data)

	for _, p := range []string{"/0", "/-3", "/abc"} {
		status, body = do(t, app, http.MethodGet, p, "")
		assert.Equal(t, http.StatusBadRequest, status, p)
		assert.Equal(t, "bad request", body.Message, p)
	}
}

func TestHandlers_RejectBadInput(t *testing.T) {
	app := fiber.New()
	app.Post("/chat/rename", ChatRename)
	app.Post("/chat/question", ChatQuestion)
	app.Get("/terminology/:id", TerminologyGet)
	app.Put("/data-training", DataTrainingSave)

	status, body := do(t, app, http.MethodPost, "/chat/rename", `{"id":0,"brief":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "无效的会话ID", body.Message)

	status, body = do(t, app, http.MethodPost, "/chat/question", `{"chat_id":0,"question":"销售额"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "无效的会话ID", body.Message)

	status, _ = do(t, app, http.MethodGet, "/terminology/x", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, http.MethodPut, "/data-training", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "参数解析失败", body.Message)
}
