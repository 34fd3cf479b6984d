package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

const activeRoomsKey = "rooms:active"

func roomKey(id string) string { return "room:" + id }

// RoomRepository 房間存放在共享儲存中，以 Version 做樂觀鎖
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	// Update 只有在儲存中的版本等於 room.Version 時寫入，成功後 room.Version 加一
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, room *models.Room) error
	FindAll(ctx context.Context) ([]models.Room, error) // 簡單的列表查詢
}

type roomRepository struct {
	store storage.SharedStore
}

func NewRoomRepository(store storage.SharedStore) RoomRepository {
	return &roomRepository{store: store}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	room.Version = 1
	raw, err := json.Marshal(room)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal)
	}

	ok, err := r.store.SetNX(ctx, roomKey(room.ID), string(raw), 0)
	if err != nil {
		return apperr.Infra(err)
	}
	if !ok {
		return apperr.ErrInternal.WithDetails("room id %s already taken", room.ID)
	}

	if _, err := r.store.SAdd(ctx, activeRoomsKey, room.ID); err != nil {
		return apperr.Infra(err)
	}
	return nil
}

func (r *roomRepository) load(ctx context.Context, id string) (*models.Room, string, error) {
	raw, err := r.store.Get(ctx, roomKey(id))
	if errors.Is(err, storage.ErrNil) {
		return nil, "", apperr.ErrRoomNotFound
	}
	if err != nil {
		return nil, "", apperr.Infra(err)
	}

	var room models.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrInternal)
	}
	return &room, raw, nil
}

func (r *roomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	room, _, err := r.load(ctx, id)
	return room, err
}

func (r *roomRepository) Update(ctx context.Context, room *models.Room) error {
	current, raw, err := r.load(ctx, room.ID)
	if err != nil {
		return err
	}
	if current.Version != room.Version {
		return apperr.ErrVersionConflict
	}

	next := room.Clone()
	next.Version++
	encoded, err := json.Marshal(next)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal)
	}

	ok, err := r.store.CompareAndSwap(ctx, roomKey(room.ID), raw, string(encoded), 0)
	if err != nil {
		return apperr.Infra(err)
	}
	if !ok {
		return apperr.ErrVersionConflict
	}

	room.Version = next.Version
	return nil
}

func (r *roomRepository) Delete(ctx context.Context, room *models.Room) error {
	current, raw, err := r.load(ctx, room.ID)
	if err != nil {
		return err
	}
	if current.Version != room.Version {
		return apperr.ErrVersionConflict
	}

	ok, err := r.store.CompareAndDelete(ctx, roomKey(room.ID), raw)
	if err != nil {
		return apperr.Infra(err)
	}
	if !ok {
		return apperr.ErrVersionConflict
	}

	if _, err := r.store.SRem(ctx, activeRoomsKey, room.ID); err != nil {
		return apperr.Infra(err)
	}
	return nil
}

// FindAll 查詢所有房間，新建立的在前；索引中已失效的 id 會順便清除
func (r *roomRepository) FindAll(ctx context.Context) ([]models.Room, error) {
	ids, err := r.store.SMembers(ctx, activeRoomsKey)
	if err != nil {
		return nil, apperr.Infra(err)
	}

	rooms := make([]models.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.FindByID(ctx, id)
		if errors.Is(err, apperr.ErrRoomNotFound) {
			_, _ = r.store.SRem(ctx, activeRoomsKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}
