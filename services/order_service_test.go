package services

import (
	"context"
	"testing"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertHistoryConsistent checks that the log ends at the order's status and
// that entry times never decrease
func assertHistoryConsistent(t *testing.T, f *fixture, orderID string) []models.StatusHistory {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", orderID).Error)

	var entries []models.StatusHistory
	require.NoError(t, f.db.Where("order_id = ?", orderID).Order("seq ASC").Find(&entries).Error)
	require.NotEmpty(t, entries)

	assert.Equal(t, order.Status, entries[len(entries)-1].Status, "latest history entry must match order status")
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Seq+1, entries[i].Seq)
		assert.False(t, entries[i].CreatedAt.Before(entries[i-1].CreatedAt), "history times must not decrease")
	}
	return entries
}

func TestSubmit_FansOutOneOrderPerTooth(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	orders := NewOrderService(f.db, f.hub, notifier)

	sub := f.submission(f.tooth("11", f.crown), f.tooth("36", f.implant))
	created, err := orders.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, created, 2)
	orders.WaitNotifications()

	assert.Equal(t, "ORD-000001", created[0].OrderNumber)
	assert.Equal(t, "ORD-000002", created[1].OrderNumber)
	assert.True(t, created[0].Price.Equal(f.crown.PriceGTQ))
	assert.True(t, created[1].Price.Equal(f.implant.PriceGTQ))
	assert.Equal(t, "Corona sobre implante", created[1].ServiceName)
	assert.Equal(t, "Clínica Sonrisas", created[0].ClinicName, "clinic name comes from the clinic record")

	for i, o := range created {
		assert.Equal(t, workflow.StatusReceived, o.Status)
		assert.True(t, o.CurrentStepEnteredAt.Equal(f.clock()))
		assert.Equal(t, models.PaymentStatusPending, o.PaymentStatus)
		require.Len(t, o.Teeth, 1)
		assert.Equal(t, sub.Teeth[i].ToothNumber, o.Teeth[0].ToothNumber)

		entries := assertHistoryConsistent(t, f, o.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, 1, entries[0].Seq)
		assert.Equal(t, "auth0|doctor", *entries[0].ChangedBy)
	}
	assert.True(t, created[0].DueDate.Equal(f.clock().Add(5*24*time.Hour)))
	assert.True(t, created[1].DueDate.Equal(f.clock().Add(7*24*time.Hour)))

	require.Len(t, notifier.created, 1)
	assert.Equal(t, []string{"ORD-000001", "ORD-000002"}, notifier.created[0].OrderNumbers)
	assert.Equal(t, []string{"11", "36"}, notifier.created[0].Teeth)

	require.Len(t, notifier.confirmed, 1, "the submitting doctor gets one confirmation")
	confirmation := notifier.confirmed[0]
	assert.Equal(t, sub.DoctorEmail, confirmation.DoctorEmail)
	assert.Equal(t, []string{"ORD-000001", "ORD-000002"}, confirmation.OrderNumbers)
	assert.Equal(t, []string{"Corona de zirconio", "Corona sobre implante"}, confirmation.Services)
	assert.True(t, confirmation.Total.Equal(f.crown.PriceGTQ.Add(f.implant.PriceGTQ)))
	assert.Equal(t, "GTQ", confirmation.Currency)
	require.NotNil(t, confirmation.DueDate)
	assert.True(t, confirmation.DueDate.Equal(f.clock().Add(7*24*time.Hour)))
}

func TestSubmit_OrderNumbersContinueAcrossSubmissions(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)

	f.submitOne(t, orders, "11")
	second := f.submitOne(t, orders, "21")
	assert.Equal(t, "ORD-000002", second.OrderNumber)
}

func TestSubmit_PublicWithoutClinic(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)

	sub := f.submission(f.tooth("46", f.crown))
	sub.ClinicID = nil
	sub.ClinicName = "Consultorio Dr. Pérez"
	sub.SubmittedBy = nil
	sub.Source = SourcePublic
	sub.Currency = models.CurrencyUSD

	created, err := orders.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Nil(t, created[0].ClinicID)
	assert.Equal(t, "Consultorio Dr. Pérez", created[0].ClinicName)
	assert.True(t, created[0].Price.Equal(f.crown.PriceUSD))

	entries := assertHistoryConsistent(t, f, created[0].ID)
	assert.Nil(t, entries[0].ChangedBy)
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)

	tests := []struct {
		name   string
		mutate func(*Submission)
		field  string
	}{
		{"duplicate tooth", func(s *Submission) { s.Teeth = append(s.Teeth, f.tooth("11", f.implant)) }, "teeth[1].tooth_number"},
		{"non FDI tooth", func(s *Submission) { s.Teeth[0].ToothNumber = "19" }, "teeth[0].tooth_number"},
		{"unknown condition", func(s *Submission) { s.Teeth[0].ConditionType = "bruxism" }, "teeth[0].condition_type"},
		{"no teeth", func(s *Submission) { s.Teeth = nil }, "teeth"},
		{"bad email", func(s *Submission) { s.DoctorEmail = "not-an-email" }, "doctor_email"},
		{"bad currency", func(s *Submission) { s.Currency = "EUR" }, "currency"},
		{"bad gender", func(s *Submission) { g := "X"; s.PatientGender = &g }, "patient_gender"},
		{"missing patient", func(s *Submission) { s.PatientName = " " }, "patient_name"},
		{"unknown service", func(s *Submission) { s.Teeth[0].ServiceID = "missing" }, "teeth[0].service_id"},
		{"inactive clinic", func(s *Submission) { id := "other"; s.ClinicID = &id }, "clinic_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := f.submission(f.tooth("11", f.crown))
			tt.mutate(&sub)

			_, err := orders.Submit(context.Background(), sub)
			var vErr *workflow.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	first := f.submitOne(t, orders, "11")
	assert.Equal(t, "ORD-000001", first.OrderNumber, "rejected submissions must not consume order numbers")
}

func TestSubmit_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)

	// second tooth references a service of another laboratory
	other := models.LabService{LaboratoryID: "another-lab", Name: "Otro", TurnaroundDays: 1, Active: true}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := orders.Submit(context.Background(), f.submission(f.tooth("11", f.crown), f.tooth("12", other)))
	require.Error(t, err)

	var orderCount, historyCount, toothCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	f.db.Model(&models.StatusHistory{}).Count(&historyCount)
	f.db.Model(&models.ToothSelection{}).Count(&toothCount)
	assert.Zero(t, orderCount)
	assert.Zero(t, historyCount)
	assert.Zero(t, toothCount)
}

func TestTransition_AdvancesAndLogs(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, f.hub, nil)
	order := f.submitOne(t, orders, "11")

	f.advance(2 * time.Hour)
	notes := "Diseño iniciado"
	updated, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{
		OrderID: order.ID,
		Status:  workflow.StatusInDesign,
		Notes:   &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusInDesign, updated.Status)
	assert.True(t, updated.CurrentStepEnteredAt.Equal(f.clock()))
	assert.Nil(t, updated.CompletedAt)

	entries := assertHistoryConsistent(t, f, order.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, "auth0|staff", *entries[1].ChangedBy)
	assert.Equal(t, "Diseño iniciado", *entries[1].Notes)
	assert.True(t, entries[1].CreatedAt.Equal(f.clock()))
}

func TestTransition_DeliveredIsTerminal(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	orders := NewOrderService(f.db, nil, notifier)
	order := f.submitOne(t, orders, "11")

	steps := []string{
		workflow.StatusInDesign,
		workflow.StatusInFabrication,
		workflow.StatusQualityControl,
		workflow.StatusReadyDelivery,
		workflow.StatusDelivered,
	}
	var last *models.Order
	for _, status := range steps {
		f.advance(time.Hour)
		var err error
		last, err = orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: status})
		require.NoError(t, err, status)
	}
	orders.WaitNotifications()

	require.NotNil(t, last.CompletedAt)
	assert.True(t, last.CompletedAt.Equal(f.clock()))
	require.Len(t, notifier.ready, 1, "ready notification is sent once on entering ready_delivery")
	assert.Equal(t, []string{"11"}, notifier.ready[0].Teeth, "the ready email lists the pieces")

	_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusInDesign})
	var vErr *workflow.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, workflow.CodeInvalidStatus, vErr.Code)

	entries := assertHistoryConsistent(t, f, order.ID)
	assert.Len(t, entries, 6)
}

func TestTransition_Rejections(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)
	order := f.submitOne(t, orders, "11")

	require.NoError(t, f.db.Model(&models.WorkflowStep{}).
		Where("laboratory_id = ? AND step_key = ?", f.lab.ID, workflow.StatusQualityControl).
		Update("active", false).Error)

	t.Run("unknown status", func(t *testing.T) {
		_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: "polishing"})
		var vErr *workflow.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, workflow.CodeInvalidStatus, vErr.Code)
	})

	t.Run("inactive step", func(t *testing.T) {
		_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusQualityControl})
		var vErr *workflow.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("same status", func(t *testing.T) {
		_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusReceived})
		var vErr *workflow.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("expected status mismatch", func(t *testing.T) {
		expected := workflow.StatusInDesign
		_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusInFabrication, ExpectedStatus: &expected})
		var cErr *workflow.ConcurrencyError
		require.ErrorAs(t, err, &cErr)
		assert.Equal(t, workflow.CodeConflict, cErr.Code)
	})

	t.Run("clinic user", func(t *testing.T) {
		_, err := orders.Transition(context.Background(), f.clinicUser(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusInDesign})
		var fErr *workflow.ForbiddenError
		assert.ErrorAs(t, err, &fErr)
	})

	t.Run("other laboratory", func(t *testing.T) {
		actor := f.staff()
		actor.LaboratoryID = "another-lab"
		_, err := orders.Transition(context.Background(), actor, TransitionRequest{OrderID: order.ID, Status: workflow.StatusCancelled})
		assert.Error(t, err)

		var stored models.Order
		require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
		assert.Equal(t, workflow.StatusReceived, stored.Status)
	})

	entries := assertHistoryConsistent(t, f, order.ID)
	assert.Len(t, entries, 1, "rejected transitions must not write history")
}

func TestTransition_ClockNeverMovesBackward(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)
	order := f.submitOne(t, orders, "11")
	entered := order.CurrentStepEnteredAt

	f.advance(-3 * time.Hour)
	updated, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusCancelled})
	require.NoError(t, err)
	assert.True(t, updated.CurrentStepEnteredAt.Equal(entered))
	assertHistoryConsistent(t, f, order.ID)
}

func TestListAndGet_ScopedToClinic(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)
	mine := f.submitOne(t, orders, "11")

	otherClinic := models.Clinic{LaboratoryID: f.lab.ID, Name: "Dental Norte", Active: true}
	require.NoError(t, f.db.Create(&otherClinic).Error)
	sub := f.submission(f.tooth("21", f.crown))
	sub.ClinicID = &otherClinic.ID
	sub.PatientName = "Carmen Ruiz"
	_, err := orders.Submit(context.Background(), sub)
	require.NoError(t, err)

	list, total, err := orders.List(context.Background(), f.clinicUser(), OrderFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, total, err = orders.List(context.Background(), f.staff(), OrderFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	list, _, err = orders.List(context.Background(), f.staff(), OrderFilter{Search: "carmen"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Carmen Ruiz", list[0].PatientName)

	_, err = orders.Get(context.Background(), f.clinicUser(), list[0].ID)
	var nf *workflow.NotFoundError
	assert.ErrorAs(t, err, &nf, "clinic users cannot read another clinic's order")

	got, err := orders.Get(context.Background(), f.clinicUser(), mine.ID)
	require.NoError(t, err)
	require.Len(t, got.Teeth, 1)
	assert.Equal(t, "11", got.Teeth[0].ToothNumber)
}

func TestHistory_Ordering(t *testing.T) {
	f := newFixture(t)
	orders := NewOrderService(f.db, nil, nil)
	order := f.submitOne(t, orders, "11")

	f.advance(time.Hour)
	_, err := orders.Transition(context.Background(), f.staff(), TransitionRequest{OrderID: order.ID, Status: workflow.StatusInDesign})
	require.NoError(t, err)

	desc, err := orders.History(context.Background(), f.staff(), order.ID, false)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, workflow.StatusInDesign, desc[0].Status)

	asc, err := orders.History(context.Background(), f.clinicUser(), order.ID, true)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReceived, asc[0].Status)
}
