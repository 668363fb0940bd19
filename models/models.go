package models

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&Laboratory{},
		&Clinic{},
		&LabService{},
		&WorkflowStep{},
		&OrderSequence{},
		&Order{},
		&ToothSelection{},
		&StatusHistory{},
		&Payment{},
		&OrderNote{},
		&OrderFile{},
		&ExchangeRate{},
	}
}
