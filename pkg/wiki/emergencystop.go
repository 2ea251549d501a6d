package wiki

import (
	"context"
	"strings"

	"github.com/orlodrim/wikibots-go/pkg/clock"
)

const talkPageHeaderStub = "{{/En-tête}}"

// minAdvancedUserEditCount is the threshold an editor of the bot's talk
// page must clear before a change there is treated as a deliberate stop
// request rather than noise.
const minAdvancedUserEditCount = 50

// DefaultEmergencyStopTest watches the talk page of the logged-in bot
// account: if it was edited after an initialization timestamp by a
// user with at least minAdvancedUserEditCount edits, and the new
// content is non-empty and not the header stub, it requests a stop.
// Otherwise it advances past the edit so the next check is trivial
// again.
//
// Grounded on
// _examples/original_source/orlodrimbot/newsletters/emergency_stop.{h,cpp}'s
// AdvancedUsersEmergencyStopTest.
type DefaultEmergencyStopTest struct {
	client Client
	clock  clock.Clock
	since  int64
}

// NewDefaultEmergencyStopTest builds a predicate watching "User
// talk:<InternalUserName>", ignoring edits made more than gracePeriod
// before activation. emergency_stop.cpp hardcodes this grace period to
// 6 minutes; here it is a constructor parameter instead.
func NewDefaultEmergencyStopTest(client Client, c clock.Clock, gracePeriodSeconds int64) *DefaultEmergencyStopTest {
	return &DefaultEmergencyStopTest{
		client: client,
		clock:  c,
		since:  c.Now().Unix() - gracePeriodSeconds,
	}
}

// Test implements EmergencyStopTest.
func (d *DefaultEmergencyStopTest) Test(ctx context.Context) (bool, error) {
	userName := d.client.InternalUserName()
	if userName == "" {
		return false, &ValidationError{Reason: "emergency stop requires a logged-in user"}
	}
	stopPage := "User talk:" + userName
	rev, err := d.client.ReadPage(ctx, stopPage, RevPropTimestamp|RevPropUser)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	if !rev.Exists || rev.Timestamp <= d.since {
		return false, nil
	}

	advancedUser := true
	if rev.User != "" {
		info, err := d.client.GetUserInfo(ctx, rev.User)
		if err != nil {
			return false, err
		}
		advancedUser = info.EditCount >= minAdvancedUserEditCount
	}

	content, err := d.client.ReadPage(ctx, stopPage, RevPropContent)
	if err != nil {
		return false, err
	}
	pageContainsMessage := strings.TrimSpace(content.Content) != talkPageHeaderStub && content.Content != ""

	if advancedUser && pageContainsMessage {
		return true, nil
	}
	d.since = rev.Timestamp
	return false, nil
}
