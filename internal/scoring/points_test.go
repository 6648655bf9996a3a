package scoring

import "testing"

func TestCalculatePointsUnderdogWin(t *testing.T) {
	p := CalculatePoints(1000, 1400)
	if p.WinnerGains != 79 {
		t.Errorf("WinnerGains = %d, want 79", p.WinnerGains)
	}
	if p.LoserLoses != 45 {
		t.Errorf("LoserLoses = %d, want 45", p.LoserLoses)
	}
	if !p.Upset {
		t.Error("expected upset for a 400 point rating gap")
	}
	if p.RatingDiff != 400 {
		t.Errorf("RatingDiff = %d, want 400", p.RatingDiff)
	}
}

func TestCalculatePointsEvenMatch(t *testing.T) {
	p := CalculatePoints(1200, 1200)
	if p.WinnerGains != 66 {
		t.Errorf("WinnerGains = %d, want 66", p.WinnerGains)
	}
	if p.LoserLoses != 25 {
		t.Errorf("LoserLoses = %d, want 25", p.LoserLoses)
	}
	if p.Upset {
		t.Error("equal ratings must not be an upset")
	}
}

func TestCalculatePointsFavoriteWin(t *testing.T) {
	p := CalculatePoints(1400, 1000)
	if p.WinnerGains != 53 {
		t.Errorf("WinnerGains = %d, want 53", p.WinnerGains)
	}
	if p.LoserLoses != 5 {
		t.Errorf("LoserLoses = %d, want 5", p.LoserLoses)
	}
	if p.Upset {
		t.Error("favorite win must not be an upset")
	}
}

func TestCalculatePointsClampsMinimumLoss(t *testing.T) {
	// 800 point gap drives the raw loss below the floor
	p := CalculatePoints(1400, 600)
	if p.LoserLoses != 5 {
		t.Errorf("LoserLoses = %d, want floor of 5", p.LoserLoses)
	}
}

func TestCalculatePointsUnratedDefaults(t *testing.T) {
	got := CalculatePoints(0, 0)
	want := CalculatePoints(DefaultRating, DefaultRating)
	if got != want {
		t.Errorf("unrated participants should score as %d rated: got %+v want %+v", DefaultRating, got, want)
	}
}

func TestActualLoss(t *testing.T) {
	cases := []struct {
		loss, balance, want int
	}{
		{45, 100, 45},
		{45, 30, 30},
		{45, 0, 0},
		{45, -10, 0},
	}
	for _, c := range cases {
		if got := ActualLoss(c.loss, c.balance); got != c.want {
			t.Errorf("ActualLoss(%d, %d) = %d, want %d", c.loss, c.balance, got, c.want)
		}
	}
}

func TestCalculateDrawPoints(t *testing.T) {
	d := CalculateDrawPoints(1000, 1400)
	if d.Challenger != 19 || d.Opponent != 15 {
		t.Errorf("got %+v, want challenger 19 / opponent 15", d)
	}

	d = CalculateDrawPoints(1400, 1000)
	if d.Challenger != 15 || d.Opponent != 19 {
		t.Errorf("got %+v, want challenger 15 / opponent 19", d)
	}

	d = CalculateDrawPoints(1200, 1200)
	if d.Challenger != 15 || d.Opponent != 15 {
		t.Errorf("equal ratings: got %+v, want 15/15", d)
	}
}

func TestCalculateDrawPointsBonusCap(t *testing.T) {
	d := CalculateDrawPoints(800, 2400)
	if d.Challenger != 25 {
		t.Errorf("Challenger = %d, want capped 25", d.Challenger)
	}
	if d.Opponent != 15 {
		t.Errorf("Opponent = %d, want 15", d.Opponent)
	}
}

func TestBonus(t *testing.T) {
	if got := Bonus(Points{Upset: true, RatingDiff: 300}); got != BonusUpset {
		t.Errorf("Bonus = %q, want upset", got)
	}
	if got := Bonus(Points{RatingDiff: -300}); got != BonusExpected {
		t.Errorf("Bonus = %q, want expected", got)
	}
	if got := Bonus(Points{RatingDiff: 100}); got != BonusEven {
		t.Errorf("Bonus = %q, want even", got)
	}
}
