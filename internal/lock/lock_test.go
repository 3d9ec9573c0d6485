/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestForPending_Key(t *testing.T) {
	db, _ := redismock.NewClientMock()
	locker := ForPending(db, "pend_1", "checker")
	assert.Equal(t, "pending:pend_1", locker.Key())
}

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := ForPending(db, "pend_1", "checker")

	mock.ExpectSetNX("pending:pend_1", "checker", 30*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 30*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := ForPending(db, "pend_1", "checker")

	mock.ExpectSetNX("pending:pend_1", "checker", 30*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 30*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "k", "v")

	mock.ExpectSetNX("k", "v", time.Second).SetErr(errors.New("connection refused"))

	err := locker.Lock(context.Background(), time.Second)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrLockHeld))
}

func TestLocker_Unlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "k", "v")

	mock.ExpectEval(unlockScript, []string{"k"}, "v").SetVal(int64(1))
	assert.NoError(t, locker.Unlock(context.Background()))

	mock.ExpectEval(unlockScript, []string{"k"}, "v").SetVal(int64(0))
	assert.Error(t, locker.Unlock(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Extend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "k", "v")

	mock.ExpectEval(extendScript, []string{"k"}, "v", "5000").SetVal(int64(1))
	assert.NoError(t, locker.Extend(context.Background(), 5*time.Second))

	mock.ExpectEval(extendScript, []string{"k"}, "v", "5000").SetVal(int64(0))
	assert.Error(t, locker.Extend(context.Background(), 5*time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}
