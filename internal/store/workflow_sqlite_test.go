package store_test

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
)

var _ = Describe("workflow store on sqlite", Ordered, func() {
	const table = "workflow_status_lite"

	var s store.Store

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "workflow.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.Workflow().CreateTable(context.TODO(), table)).To(BeNil())
	})

	AfterAll(func() {
		if s != nil {
			s.Close()
		}
	})

	It("updates statuses and appends validations incrementally", func() {
		id := uuid.NewString()
		record := &model.WorkflowRecord{
			ID:         id,
			FileID:     "file-lite-1",
			DomainName: "billing",
		}
		Expect(s.Workflow().Create(context.TODO(), table, record)).To(BeNil())

		status := "PASSED"
		Expect(s.Workflow().Update(context.TODO(), table, id, store.UpdateFields{
			RuleStatus:  map[string]any{"rules": "done"},
			FinalStatus: &status,
		})).To(BeNil())

		Expect(s.Workflow().Update(context.TODO(), table, id, store.UpdateFields{
			FailedValidations: []model.FailedValidation{
				{RuleName: "not_null", ColumnName: "amount", Status: "FAILED"},
			},
		})).To(BeNil())
		Expect(s.Workflow().Update(context.TODO(), table, id, store.UpdateFields{
			FailedValidations: []model.FailedValidation{
				{RuleName: "positive", ColumnName: "amount", Status: "FAILED"},
			},
		})).To(BeNil())

		got, err := s.Workflow().GetByID(context.TODO(), table, id)
		Expect(err).To(BeNil())
		Expect(got.FinalStatus).To(Equal("PASSED"))
		Expect(got.RuleStatusMap()).To(HaveKeyWithValue("rules", "done"))

		validations := got.Validations()
		Expect(validations).To(HaveLen(2))
		Expect(validations[0].RuleName).To(Equal("not_null"))
		Expect(validations[1].RuleName).To(Equal("positive"))
	})

	It("appends multiple validations from a single update", func() {
		id := uuid.NewString()
		Expect(s.Workflow().Create(context.TODO(), table, &model.WorkflowRecord{
			ID:     id,
			FileID: "file-lite-2",
		})).To(BeNil())

		Expect(s.Workflow().Update(context.TODO(), table, id, store.UpdateFields{
			FailedValidations: []model.FailedValidation{
				{RuleName: "not_null", ColumnName: "amount", Status: "FAILED"},
				{RuleName: "range", ColumnName: "quantity", Status: "FAILED"},
			},
		})).To(BeNil())

		got, err := s.Workflow().GetByID(context.TODO(), table, id)
		Expect(err).To(BeNil())
		Expect(got.Validations()).To(HaveLen(2))
	})
})
