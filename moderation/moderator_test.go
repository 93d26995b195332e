package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testModerator(t *testing.T, words ...string) Moderator {
	t.Helper()
	m, err := NewModerator(words, '*')
	require.NoError(t, err)
	return m
}

func Test_Censor_Masks_Listed_Word(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "paypal")

	masked, found := moderator.Censor("I can do it cheaper over PayPal if you want")
	req.NotContains(strings.ToLower(masked), "paypal")
	req.Contains(masked, "******")
	req.Equal([]string{"paypal"}, found)
}

func Test_Censor_Survives_Substitutions(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "paypal")

	for _, disguised := range []string{"p a y p a l", "P4yp4l", "pay-pal", "p.a.y.p.a.l"} {
		masked, found := moderator.Censor("send via " + disguised + " tonight")
		req.NotEqual("send via "+disguised+" tonight", masked, "should mask %q", disguised)
		req.NotEmpty(found)
	}
}

func Test_Censor_Masks_Email_And_Phone(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "paypal")

	masked, found := moderator.Censor("reach me at alice@example.com or +33 6 12 34 56 78")
	req.NotContains(masked, "alice@example.com")
	req.NotContains(masked, "6 12 34 56 78")
	req.Contains(found, "EMAIL")
	req.Contains(found, "PHONE")
}

func Test_Censor_Leaves_Clean_Text_Alone(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "paypal")

	original := "The living room is 24 sqm, budget around 3000."
	masked, found := moderator.Censor(original)
	req.Equal(original, masked)
	req.Empty(found)
}

func Test_Censor_Preserves_Length(t *testing.T) {
	req := require.New(t)
	moderator := testModerator(t, "telegram")

	original := "ping me on telegram later"
	masked, _ := moderator.Censor(original)
	req.Equal(len([]rune(original)), len([]rune(masked)))
}

func Test_LoadBlocklist(t *testing.T) {
	req := require.New(t)
	blocklist, err := LoadBlocklist()
	req.NoError(err)
	req.NotEmpty(blocklist.Words)
	req.Contains(blocklist.Languages, "en")
	req.Contains(blocklist.Languages, "fr")
	req.NotContains(blocklist.Words, "")
}
