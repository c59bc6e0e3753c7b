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

package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSpawnAddsBothDirections(t *testing.T) {
	r := New()
	r.RecordSpawn("parent-1", "child-1", "child")

	parentContacts := r.List("parent-1")
	require := assert.New(t)
	require.Len(parentContacts, 1)
	require.Equal("child-1", parentContacts[0].PeerID)

	childContacts := r.List("child-1")
	require.Len(childContacts, 1)
	require.Equal("parent-1", childContacts[0].PeerID)
	require.Equal("parent", childContacts[0].Label)
}

func TestNotePeerDoesNotOverwrite(t *testing.T) {
	r := New()
	r.Add("a1", Contact{PeerID: "p1", Label: "collaborator", Note: "important"})
	r.NotePeer("a1", "p1", "sender")

	contacts := r.List("a1")
	assert.Len(t, contacts, 1)
	assert.Equal(t, "important", contacts[0].Note)
}

func TestForgetRemovesBothDirections(t *testing.T) {
	r := New()
	r.RecordSpawn("parent-1", "child-1", "child")
	r.Forget("child-1")

	assert.Empty(t, r.List("child-1"))
	assert.Empty(t, r.List("parent-1"))
}

func TestRenderEmptyWhenNoContacts(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Render("ghost"))
}

func TestRenderIncludesLabelAndNote(t *testing.T) {
	r := New()
	r.Add("a1", Contact{PeerID: "p1", Label: "collaborator", Note: "handles billing"})
	out := r.Render("a1")
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "collaborator")
	assert.Contains(t, out, "handles billing")
}
