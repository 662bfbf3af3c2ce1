package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (model.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer unlock()

	user, ok := r.s.data.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByUUID(ctx context.Context, id uuid.UUID) (model.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer unlock()

	for _, user := range r.s.data.users {
		if user.UUID == id {
			return user, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer unlock()

	email = strings.ToLower(email)
	for _, user := range r.s.data.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer unlock()

	user.Email = strings.ToLower(user.Email)
	for _, existing := range r.s.data.users {
		if existing.Email == user.Email || (user.UUID != uuid.Nil && existing.UUID == user.UUID) {
			return model.User{}, model.ErrAlreadyExists
		}
	}

	r.s.data.nextUserID++
	user.ID = r.s.data.nextUserID
	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.s.data.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, fields model.UserUpdate) (model.User, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer unlock()

	user, ok := r.s.data.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	if fields.IsEmpty() {
		return user, nil
	}

	fields.Apply(&user)
	user.UpdatedAt = r.s.now()
	r.s.data.users[id] = user

	return user, nil
}

// Delete removes the user together with everything that references it.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	d := r.s.data
	if _, ok := d.users[id]; !ok {
		return model.ErrNotFound
	}
	delete(d.users, id)

	for k, v := range d.refreshTokens {
		if v.UserID == id {
			delete(d.refreshTokens, k)
		}
	}
	for k, v := range d.sessions {
		if v.UserID == id {
			delete(d.sessions, k)
		}
	}
	for k, v := range d.oneTime {
		if v.UserID == id {
			delete(d.oneTime, k)
		}
	}
	for k, v := range d.links {
		if v.UserID == id {
			delete(d.links, k)
		}
	}

	return nil
}
