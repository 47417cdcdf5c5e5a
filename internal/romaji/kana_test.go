package romaji

import "testing"

func TestToRomaji(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"こんにちは", "kon'nichiha"},
		{"コンニチハ", "kon'nichiha"},
		{"さようなら", "sayounara"},
		{"きょう", "kyou"},
		{"がっこう", "gakkou"},
		{"まっちゃ", "matcha"},
		{"ちょっと", "chotto"},
		{"しんぶん", "shinbun"},
		{"きんえん", "kin'en"},
		{"こんや", "kon'ya"},
		{"ほんの", "hon'no"},
		{"コーヒー", "koohii"},
		{"ラーメン", "raamen"},
		{"ティーム", "tiimu"},
		{"ファイル", "fairu"},
		{"ヴァイオリン", "vaiorin"},
		{"ふじさん。", "fujisan."},
		{"あっ", "a"},
		{"ー", "-"},
		{"HP 100", "HP 100"},
		{"漢字", "漢字"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToRomaji(tt.in); got != tt.want {
				t.Errorf("ToRomaji(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToRomajiDeterministic(t *testing.T) {
	in := "ロマンチックなシャッター"
	first := ToRomaji(in)
	for i := 0; i < 10; i++ {
		if got := ToRomaji(in); got != first {
			t.Fatalf("ToRomaji not deterministic: %q vs %q", got, first)
		}
	}
}

func TestKanaRomanizerFoldsWidth(t *testing.T) {
	if got := (Kana{}).Romanize("ﾃｽﾄ！"); got != "tesuto!" {
		t.Errorf("Kana.Romanize = %q, want tesuto!", got)
	}
}
