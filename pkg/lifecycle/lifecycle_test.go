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

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/store"
)

func newTestManager(t *testing.T) (*Manager, *orgstore.OrgStore) {
	t.Helper()
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	org, err := orgstore.Open(ctx, fs)
	require.NoError(t, err)

	b := bus.New()
	b.Register(orgstore.RootAgentID)
	b.Register(orgstore.UserAgentID)
	conv := convstore.New(fs, 100_000)
	reg := contacts.New()

	return New(org, b, conv, reg), org
}

func validBrief() TaskBrief {
	return TaskBrief{
		Objective:          "write a doc",
		Constraints:        []string{},
		Inputs:             "none",
		Outputs:            "a doc",
		CompletionCriteria: "doc exists",
	}
}

func TestSpawnRejectsInvalidTaskBrief(t *testing.T) {
	m, org := newTestManager(t)
	ctx := context.Background()
	role, err := org.CreateRole(ctx, "writer", "p", "", orgstore.RootAgentID)
	require.NoError(t, err)

	_, err = m.Spawn(ctx, SpawnRequest{
		RoleID:         role.ID,
		ParentAgentID:  orgstore.RootAgentID,
		TaskBrief:      TaskBrief{Objective: "x"},
		InitialMessage: "hello",
	})
	assert.ErrorIs(t, err, ErrInvalidTaskBrief)
}

func TestSpawnSucceedsAndEnqueuesInitialMessage(t *testing.T) {
	m, org := newTestManager(t)
	ctx := context.Background()
	role, err := org.CreateRole(ctx, "writer", "p", "", orgstore.RootAgentID)
	require.NoError(t, err)

	res, err := m.Spawn(ctx, SpawnRequest{
		RoleID:         role.ID,
		ParentAgentID:  orgstore.RootAgentID,
		TaskBrief:      validBrief(),
		InitialMessage: "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AgentID)
	assert.NotEmpty(t, res.TaskID)

	msg, ok := m.Bus.ReceiveNext(res.AgentID)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Payload)

	h := m.Conv.Get(res.AgentID)
	require.Len(t, h, 1)
	assert.Equal(t, "p", h[0].Content)
}

func TestTerminateCascade(t *testing.T) {
	m, org := newTestManager(t)
	ctx := context.Background()
	role, err := org.CreateRole(ctx, "writer", "p", "", orgstore.RootAgentID)
	require.NoError(t, err)

	spawn := func(parent string) SpawnResult {
		res, err := m.Spawn(ctx, SpawnRequest{
			RoleID:         role.ID,
			ParentAgentID:  parent,
			TaskBrief:      validBrief(),
			InitialMessage: "hi",
		})
		require.NoError(t, err)
		return res
	}

	a := spawn(orgstore.RootAgentID)
	b := spawn(a.AgentID)
	c := spawn(a.AgentID)
	d := spawn(b.AgentID)

	result, err := m.Terminate(ctx, TerminateRequest{AgentID: a.AgentID, CallerAgentID: orgstore.RootAgentID, Reason: "done"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.AgentID, b.AgentID, c.AgentID, d.AgentID}, result.Terminated)

	for _, id := range result.Terminated {
		ag, err := org.GetAgent(id)
		require.NoError(t, err)
		assert.Equal(t, orgstore.StatusTerminated, ag.Status)
	}
	assert.Len(t, org.ListTerminations(), 4)

	_, err = m.Bus.Send(bus.Message{From: orgstore.RootAgentID, To: d.AgentID, Payload: "x"})
	assert.ErrorIs(t, err, bus.ErrUnknownRecipient)
}

func TestTerminateRejectsNonChild(t *testing.T) {
	m, org := newTestManager(t)
	ctx := context.Background()
	role, err := org.CreateRole(ctx, "writer", "p", "", orgstore.RootAgentID)
	require.NoError(t, err)

	a, err := m.Spawn(ctx, SpawnRequest{RoleID: role.ID, ParentAgentID: orgstore.RootAgentID, TaskBrief: validBrief(), InitialMessage: "hi"})
	require.NoError(t, err)
	b, err := m.Spawn(ctx, SpawnRequest{RoleID: role.ID, ParentAgentID: orgstore.RootAgentID, TaskBrief: validBrief(), InitialMessage: "hi"})
	require.NoError(t, err)

	_, err = m.Terminate(ctx, TerminateRequest{AgentID: b.AgentID, CallerAgentID: a.AgentID, Reason: "nope"})
	assert.ErrorIs(t, err, ErrNotChildAgent)
}
