package materializer_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/materializer"
	"github.com/dataforge/workflow-engine/internal/store"
)

const domainTable = "billing_orders_spec"

var _ = Describe("materializer", Ordered, func() {
	var (
		m      *materializer.Materializer
		gormdb *gorm.DB
	)

	seedRow := func() map[string]any {
		return map[string]any{
			"customer": "acme",
			"amount":   12.5,
			"quantity": 3,
		}
	}

	countRows := func(table string) int {
		var count int64
		Expect(gormdb.Raw("SELECT COUNT(*) FROM " + table).Scan(&count).Error).To(BeNil())
		return int(count)
	}

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		if err != nil {
			Skip(fmt.Sprintf("database not reachable: %v", err))
		}
		gormdb = db

		m = materializer.New(db)
		Expect(m.EnsureTable(context.TODO(), domainTable, seedRow())).To(BeNil())
	})

	AfterAll(func() {
		if gormdb != nil {
			gormdb.Exec("DROP TABLE IF EXISTS " + domainTable + "_archive;")
			gormdb.Exec("DROP TABLE IF EXISTS " + domainTable + ";")
		}
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM " + domainTable + "_archive;")
		gormdb.Exec("DELETE FROM " + domainTable + ";")
	})

	Context("insert", func() {
		It("lands a row matching the live columns", func() {
			id, err := m.Insert(context.TODO(), domainTable, seedRow())
			Expect(err).To(BeNil())
			Expect(id).ToNot(BeEmpty())

			var customer string
			Expect(gormdb.Raw(
				"SELECT customer FROM "+domainTable+" WHERE id = ?", id,
			).Scan(&customer).Error).To(BeNil())
			Expect(customer).To(Equal("acme"))
		})

		It("rejects unknown columns by name and writes nothing", func() {
			row := seedRow()
			row["zz_extra"] = "x"
			row["aa_other"] = "y"

			_, err := m.Insert(context.TODO(), domainTable, row)
			var unknown *materializer.UnknownColumnsError
			Expect(errors.As(err, &unknown)).To(BeTrue())
			Expect(unknown.Table).To(Equal(domainTable))
			Expect(unknown.Columns).To(Equal([]string{"aa_other", "zz_extra"}))

			Expect(countRows(domainTable)).To(Equal(0))
		})

		It("ignores caller supplied timestamp columns", func() {
			row := seedRow()
			row["created_date"] = "2020-01-01"
			row["updated_date"] = "2020-01-01"

			_, err := m.Insert(context.TODO(), domainTable, row)
			Expect(err).To(BeNil())
			Expect(countRows(domainTable)).To(Equal(1))
		})

		It("keeps the first writer's shape", func() {
			Expect(m.EnsureTable(context.TODO(), domainTable, map[string]any{
				"something_else": "value",
			})).To(BeNil())

			_, err := m.Insert(context.TODO(), domainTable, map[string]any{
				"something_else": "value",
			})
			var unknown *materializer.UnknownColumnsError
			Expect(errors.As(err, &unknown)).To(BeTrue())
		})
	})

	Context("archive", func() {
		It("appends an archive row and flags the original", func() {
			id, err := m.Insert(context.TODO(), domainTable, seedRow())
			Expect(err).To(BeNil())

			Expect(m.ArchiveAndMarkDeleted(context.TODO(), domainTable, id, "duplicate entry")).To(BeNil())

			var refID string
			Expect(gormdb.Raw(
				"SELECT "+domainTable+"_id FROM "+domainTable+"_archive",
			).Scan(&refID).Error).To(BeNil())
			Expect(refID).To(Equal(id))

			var archived bool
			Expect(gormdb.Raw(
				"SELECT is_archived FROM "+domainTable+" WHERE id = ?", id,
			).Scan(&archived).Error).To(BeNil())
			Expect(archived).To(BeTrue())
		})

		It("tolerates archiving the same row twice", func() {
			id, err := m.Insert(context.TODO(), domainTable, seedRow())
			Expect(err).To(BeNil())

			Expect(m.ArchiveAndMarkDeleted(context.TODO(), domainTable, id, "first")).To(BeNil())
			Expect(m.ArchiveAndMarkDeleted(context.TODO(), domainTable, id, "second")).To(BeNil())

			Expect(countRows(domainTable + "_archive")).To(Equal(2))

			var archived bool
			Expect(gormdb.Raw(
				"SELECT is_archived FROM "+domainTable+" WHERE id = ?", id,
			).Scan(&archived).Error).To(BeNil())
			Expect(archived).To(BeTrue())
		})

		It("does not fail when the original row is gone", func() {
			Expect(m.ArchiveAndMarkDeleted(context.TODO(), domainTable, "missing-id", "cleanup")).To(BeNil())
			Expect(countRows(domainTable + "_archive")).To(Equal(1))
		})
	})

	Context("compare and swap", func() {
		It("swaps the column only when the current value matches", func() {
			id, err := m.Insert(context.TODO(), domainTable, seedRow())
			Expect(err).To(BeNil())

			Expect(m.CASUpdateColumn(context.TODO(), domainTable, "customer", id, "acme", "globex")).To(BeNil())

			var customer string
			Expect(gormdb.Raw(
				"SELECT customer FROM "+domainTable+" WHERE id = ?", id,
			).Scan(&customer).Error).To(BeNil())
			Expect(customer).To(Equal("globex"))
		})

		It("leaves the row untouched on a stale expected value", func() {
			id, err := m.Insert(context.TODO(), domainTable, seedRow())
			Expect(err).To(BeNil())

			Expect(m.CASUpdateColumn(context.TODO(), domainTable, "customer", id, "stale", "globex")).To(BeNil())

			var customer string
			Expect(gormdb.Raw(
				"SELECT customer FROM "+domainTable+" WHERE id = ?", id,
			).Scan(&customer).Error).To(BeNil())
			Expect(customer).To(Equal("acme"))
		})
	})
})
