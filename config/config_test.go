package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Load()

	if got := cfg.PointValue[CategoryReferral]; got != 10 {
		t.Errorf("expected referral point value 10, got %v", got)
	}
	if got := cfg.DailyLimit[CategoryLike]; got != 5 {
		t.Errorf("expected like daily limit 5, got %v", got)
	}
	if got := cfg.DailyLimit[CategoryPost]; got != 2 {
		t.Errorf("expected post daily limit 2, got %v", got)
	}
	if got := cfg.MonthlyCap[CategoryPost]; got != 30 {
		t.Errorf("expected post monthly cap 30, got %v", got)
	}
	if got := cfg.EmpathyFraction; got != 0.10 {
		t.Errorf("expected empathy fraction 0.10, got %v", got)
	}
	if got := cfg.DuplicateDistanceThreshold; got != 0.1 {
		t.Errorf("expected duplicate threshold 0.1, got %v", got)
	}
}

func TestMonthlyCapTotal(t *testing.T) {
	cfg := Load()
	if got := cfg.MonthlyCapTotal(); got != 110 {
		t.Errorf("expected monthly cap total 110, got %v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DAILY_LIMIT_LIKE", "9")
	t.Setenv("POINT_VALUE_TIP", "0.75")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("ENV", "production")

	cfg := Load()

	if got := cfg.DailyLimit[CategoryLike]; got != 9 {
		t.Errorf("expected overridden like limit 9, got %v", got)
	}
	if got := cfg.PointValue[CategoryTip]; got != 0.75 {
		t.Errorf("expected overridden tip value 0.75, got %v", got)
	}
	if got := cfg.QueueWorkers; got != 8 {
		t.Errorf("expected 8 queue workers, got %v", got)
	}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("expected production mode")
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("DAILY_LIMIT_CRYPTO", "not-a-number")

	cfg := Load()
	if got := cfg.DailyLimit[CategoryCrypto]; got != 3 {
		t.Errorf("malformed env value must fall back to the default 3, got %v", got)
	}
}

func TestCategoriesStableOrder(t *testing.T) {
	want := []Category{
		CategoryPost, CategoryLike, CategoryComment,
		CategoryReferral, CategoryTip, CategoryCrypto,
	}
	if len(Categories) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(Categories))
	}
	for i, cat := range want {
		if Categories[i] != cat {
			t.Errorf("category %d: expected %s, got %s", i, cat, Categories[i])
		}
	}
}
