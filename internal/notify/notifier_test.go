package notify_test

import (
	"context"
	"errors"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"

	"github.com/sitedesk/foreman/internal/notify"
)

type fakeSlackAPI struct {
	channels []string
	err      error
}

func (f *fakeSlackAPI) PostMessageContext(_ context.Context, channelID string, _ ...slacklib.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	return channelID, "1700000000.000100", f.err
}

func TestSlackNotifier_Escalate(t *testing.T) {
	t.Parallel()

	t.Run("posts to configured channel", func(t *testing.T) {
		t.Parallel()

		api := &fakeSlackAPI{}
		n := notify.NewSlackWithAPI(api, "#back-office-review")

		n.Escalate(context.Background(), "AR Follow-Up escalated Parkview Associates to collections")

		assert.Equal(t, []string{"#back-office-review"}, api.channels)
	})

	t.Run("post failure does not panic", func(t *testing.T) {
		t.Parallel()

		api := &fakeSlackAPI{err: errors.New("channel_not_found")}
		n := notify.NewSlackWithAPI(api, "#missing")

		assert.NotPanics(t, func() {
			n.Escalate(context.Background(), "note")
		})
	})
}
