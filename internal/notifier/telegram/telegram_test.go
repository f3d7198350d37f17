package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Telegram)(nil)
}

func TestTelegram_Name(t *testing.T) {
	assert.Equal(t, "telegram", New("token", "1").Name())
}

type botServer struct {
	mu    sync.Mutex
	calls map[string]int
	form  map[string]string
}

func newBotServer(t *testing.T) (*botServer, *httptest.Server) {
	t.Helper()
	b := &botServer{calls: map[string]int{}, form: map[string]string{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		b.mu.Lock()
		b.calls[method]++
		if method == "sendMessage" {
			for k := range r.PostForm {
				b.form[k] = r.PostForm.Get(k)
			}
		}
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"nextsignal","username":"nextsignal_bot"}}`)
		case "sendMessage":
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func TestTelegram_Send(t *testing.T) {
	b, srv := newBotServer(t)
	tg := NewWithEndpoint("test-token", "42", srv.URL+"/bot%s/%s")

	d := notifier.Delivery{
		Market:  core.MarketLive,
		At:      core.Clock{Hour: 8, Minute: 59},
		Signals: []core.Signal{{Name: "EUR/USD", Time: "09:00", Action: core.ActionCall}},
	}

	require.NoError(t, tg.Send(context.Background(), d))
	require.NoError(t, tg.Send(context.Background(), d))

	assert.Equal(t, 1, b.calls["getMe"], "bot is connected once")
	assert.Equal(t, 2, b.calls["sendMessage"])
	assert.Equal(t, "42", b.form["chat_id"])
	assert.Equal(t, "Markdown", b.form["parse_mode"])
	assert.Contains(t, b.form["text"], "EUR/USD 09:00 CALL")
	assert.Contains(t, b.form["text"], "08:59")
}

func TestTelegram_Send_Channel(t *testing.T) {
	b, srv := newBotServer(t)
	tg := NewWithEndpoint("test-token", "@signals", srv.URL+"/bot%s/%s")

	require.NoError(t, tg.Send(context.Background(), notifier.Delivery{Market: core.MarketOTC}))
	assert.Equal(t, "@signals", b.form["chat_id"])
}

func TestTelegram_Send_InvalidChatID(t *testing.T) {
	_, srv := newBotServer(t)
	tg := NewWithEndpoint("test-token", "not-a-number", srv.URL+"/bot%s/%s")

	assert.Error(t, tg.Send(context.Background(), notifier.Delivery{}))
}

func TestTelegram_Send_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	tg := NewWithEndpoint("bad-token", "42", srv.URL+"/bot%s/%s")
	assert.Error(t, tg.Send(context.Background(), notifier.Delivery{}))
}

func TestTelegram_Send_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, New("token", "42").Send(ctx, notifier.Delivery{}))
}

func TestFormatDelivery(t *testing.T) {
	live := formatDelivery(notifier.Delivery{
		Market:  core.MarketLive,
		At:      core.Clock{Hour: 23},
		Signals: []core.Signal{{Name: "GBP/JPY", Time: "09:00", Action: core.ActionPut}},
	})
	assert.Contains(t, live, "Next signal")
	assert.Contains(t, live, "📉 GBP/JPY 09:00 PUT")

	otc := formatDelivery(notifier.Delivery{
		Market: core.MarketOTC,
		Signals: []core.Signal{
			{Name: "A", Time: "10:00", Action: core.ActionCall},
			{Name: "B", Time: "09:00", Action: core.ActionPut},
		},
	})
	assert.Contains(t, otc, "OTC signals")
	assert.Less(t, strings.Index(otc, "A 10:00"), strings.Index(otc, "B 09:00"))

	empty := formatDelivery(notifier.Delivery{Market: core.MarketLive})
	assert.Contains(t, empty, "No signals available")
}

func TestTelegram_Integration(t *testing.T) {
	token, chat := os.Getenv("NEXTSIGNAL_TEST_TELEGRAM_TOKEN"), os.Getenv("NEXTSIGNAL_TEST_TELEGRAM_CHAT")
	if testing.Short() || token == "" || chat == "" {
		t.Skip("NEXTSIGNAL_TEST_TELEGRAM_TOKEN/CHAT not set")
	}

	err := New(token, chat).Send(context.Background(), notifier.Delivery{
		Market:  core.MarketLive,
		Signals: []core.Signal{{Name: "TEST", Time: "00:00", Action: core.ActionCall}},
	})
	assert.NoError(t, err)
}
