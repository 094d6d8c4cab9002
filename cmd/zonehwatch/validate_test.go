package main

import (
	"reflect"
	"testing"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

func TestValidatePages(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		end     int
		wantErr bool
	}{
		{"都未指定", 0, 0, false},
		{"只有起始页", 3, 0, false},
		{"正常范围", 1, 5, false},
		{"起止相同", 2, 2, false},
		{"负数起始页", -1, 0, true},
		{"负数结束页", 0, -2, true},
		{"结束页小于起始页", 5, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePages(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePages(%d, %d) error = %v, wantErr %v", tt.start, tt.end, err, tt.wantErr)
			}
		})
	}
}

func TestParseArchives(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		fallback string
		want     []models.ArchiveType
		wantErr  bool
	}{
		{"使用默认分区", nil, "special", []models.ArchiveType{models.ArchiveSpecial}, false},
		{"逗号分隔", []string{"archive,onhold"}, "archive", []models.ArchiveType{models.ArchiveMain, models.ArchiveOnHold}, false},
		{"去重并保持顺序", []string{"onhold", "ARCHIVE", "onhold"}, "", []models.ArchiveType{models.ArchiveOnHold, models.ArchiveMain}, false},
		{"未知分区", []string{"bogus"}, "", nil, true},
		{"全部为空", []string{" , "}, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArchives(tt.values, tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseArchives() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseArchives() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateExportPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"", false},
		{"records.csv", false},
		{"out/records.XLSX", false},
		{"/tmp/records.json", false},
		{"records.txt", true},
		{"records", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if err := ValidateExportPath(tt.path); (err != nil) != tt.wantErr {
				t.Errorf("ValidateExportPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
