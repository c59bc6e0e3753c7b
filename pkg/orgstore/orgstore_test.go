// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orgstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/store"
)

func newTestStore(t *testing.T) *OrgStore {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s, err := Open(context.Background(), fs)
	require.NoError(t, err)
	return s
}

func TestSingletonsPreCreated(t *testing.T) {
	s := newTestStore(t)
	root, err := s.GetAgent(RootAgentID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, root.Status)

	user, err := s.GetAgent(UserAgentID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, user.Status)
}

func TestCreateAgentRejectsUnknownParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	role, err := s.CreateRole(ctx, "writer", "p", "", RootAgentID)
	require.NoError(t, err)

	_, err = s.CreateAgent(ctx, role.ID, "ghost-parent", "")
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestCreateAgentAcceptsRootOrActiveParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	role, err := s.CreateRole(ctx, "writer", "p", "", RootAgentID)
	require.NoError(t, err)

	a, err := s.CreateAgent(ctx, role.ID, RootAgentID, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, a.Status)

	child, err := s.CreateAgent(ctx, role.ID, a.ID, "t1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, child.ParentAgentID)
}

func TestCreateAgentRejectsTerminatedParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	role, err := s.CreateRole(ctx, "writer", "p", "", RootAgentID)
	require.NoError(t, err)

	a, err := s.CreateAgent(ctx, role.ID, RootAgentID, "t1")
	require.NoError(t, err)
	require.NoError(t, s.MarkTerminated(ctx, a.ID))

	_, err = s.CreateAgent(ctx, role.ID, a.ID, "t1")
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestRecordTerminationAppendsAndPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	role, err := s.CreateRole(ctx, "writer", "p", "", RootAgentID)
	require.NoError(t, err)
	a, err := s.CreateAgent(ctx, role.ID, RootAgentID, "t1")
	require.NoError(t, err)

	require.NoError(t, s.MarkTerminated(ctx, a.ID))
	require.NoError(t, s.RecordTermination(ctx, a.ID, RootAgentID, "done"))

	terms := s.ListTerminations()
	require.Len(t, terms, 1)
	assert.Equal(t, a.ID, terms[0].AgentID)
	assert.Equal(t, RootAgentID, terms[0].TerminatedBy)
}

func TestChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	role, err := s.CreateRole(ctx, "writer", "p", "", RootAgentID)
	require.NoError(t, err)
	a, err := s.CreateAgent(ctx, role.ID, RootAgentID, "t1")
	require.NoError(t, err)
	b, err := s.CreateAgent(ctx, role.ID, a.ID, "t1")
	require.NoError(t, err)
	c, err := s.CreateAgent(ctx, role.ID, a.ID, "t1")
	require.NoError(t, err)

	kids := s.Children(a.ID)
	require.Len(t, kids, 2)
	ids := []string{kids[0].ID, kids[1].ID}
	assert.Contains(t, ids, b.ID)
	assert.Contains(t, ids, c.ID)
}
