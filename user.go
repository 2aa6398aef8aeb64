package clevertouch

import "context"

// User is a refreshable snapshot of the account-wide user data.
type User struct {
	session *Session

	// ID is the cloud user id.
	ID string

	// Email the account was authenticated with.
	Email string

	// Homes maps home ids to their basic info (no zones at this level).
	Homes map[string]*HomeInfo
}

func newUser(session *Session) *User {
	return &User{session: session, Email: session.Email()}
}

// Refresh re-fetches the user data and replaces the contents wholesale.
// HomeInfo objects obtained before a refresh are never updated in place.
func (u *User) Refresh(ctx context.Context) error {
	data, err := u.session.ReadUserData(ctx)
	if err != nil {
		return err
	}

	userID, err := stringField(data, "user_id")
	if err != nil {
		return err
	}
	homeList, err := mapListField(data, "smarthomes")
	if err != nil {
		return err
	}

	homes := make(map[string]*HomeInfo, len(homeList))
	for _, homeData := range homeList {
		info, err := parseHomeInfo(homeData)
		if err != nil {
			return err
		}
		homes[info.ID] = info
	}

	u.ID = userID
	u.Homes = homes
	return nil
}
