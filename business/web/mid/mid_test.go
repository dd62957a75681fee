package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/business/web/mid"
	"github.com/ardanlabs/utxochain/foundation/web"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestErrors(t *testing.T) {
	t.Log("Given the need to convert handler errors into responses.")
	{
		log := zap.NewNop().Sugar()

		tt := []struct {
			name    string
			handler web.Handler
			status  int
			message string
		}{
			{
				name: "trusted",
				handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					return errs.NewTrusted(errors.New("block not accepted"), http.StatusNotAcceptable)
				},
				status:  http.StatusNotAcceptable,
				message: "block not accepted",
			},
			{
				name: "fields",
				handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					return web.FieldErrors{"host": "host is a required field"}
				},
				status:  http.StatusBadRequest,
				message: "data validation error",
			},
			{
				name: "internal",
				handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					return errors.New("disk on fire")
				},
				status:  http.StatusInternalServerError,
				message: http.StatusText(http.StatusInternalServerError),
			},
			{
				name: "panic",
				handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					panic("boom")
				},
				status:  http.StatusInternalServerError,
				message: http.StatusText(http.StatusInternalServerError),
			},
		}

		for testID, test := range tt {
			tf := func(t *testing.T) {
				app := web.NewApp(make(chan os.Signal, 1), mid.Logger(log), mid.Errors(log), mid.Metrics(), mid.Panics())
				app.Handle(http.MethodGet, "v1", "/test", test.handler)

				w := httptest.NewRecorder()
				app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

				if w.Code != test.status {
					t.Fatalf("\t%s\tTest %d:\tShould receive status %d, got %d.", failed, testID, test.status, w.Code)
				}
				t.Logf("\t%s\tTest %d:\tShould receive status %d.", success, testID, test.status)

				var resp errs.Response
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
				}

				if resp.Error != test.message {
					t.Fatalf("\t%s\tTest %d:\tShould get message %q, got %q.", failed, testID, test.message, resp.Error)
				}
				t.Logf("\t%s\tTest %d:\tShould get message %q.", success, testID, test.message)
			}

			t.Run(test.name, tf)
		}
	}
}
