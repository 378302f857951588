//go:build integration

package flowstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/c360/flowcanvas/natsclient"
)

// KVStoreSuite runs the store contract against a real NATS server.
type KVStoreSuite struct {
	suite.Suite
	tc    *natsclient.TestClient
	store *KVStore
}

func TestKVStoreSuite(t *testing.T) {
	suite.Run(t, new(KVStoreSuite))
}

func (s *KVStoreSuite) SetupSuite() {
	s.tc = natsclient.NewTestClient(s.T(), natsclient.WithJetStream())

	store, err := NewKVStore(context.Background(), s.tc.Client)
	s.Require().NoError(err)
	s.store = store
}

func (s *KVStoreSuite) TestContract() {
	storeContract(s.T(), s.store)
}

func (s *KVStoreSuite) TestListIncludesSaved() {
	ctx := context.Background()
	doc := validDoc()
	doc.Name = "listed"
	id, err := s.store.Save(ctx, doc)
	s.Require().NoError(err)

	list, err := s.store.List(ctx)
	s.Require().NoError(err)
	found := false
	for _, sum := range list {
		if sum.ID == id {
			found = true
			s.Equal("listed", sum.Name)
		}
	}
	s.True(found)
}
