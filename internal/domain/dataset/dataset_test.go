package dataset

import (
	"bytes"
	"testing"

	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given the embedded iris dataset", t, func() {
		d, err := Load()
		So(err, ShouldBeNil)

		Convey("Then it should hold 150 labelled rows", func() {
			So(len(d.X), ShouldEqual, 150)
			So(len(d.Y), ShouldEqual, 150)
			So(d.Features, ShouldResemble, types.RequiredColumns())
			So(d.Classes, ShouldResemble, types.ClassNames())
		})

		Convey("Then each class should have 50 rows", func() {
			counts := make([]int, len(d.Classes))
			for _, y := range d.Y {
				counts[y]++
			}
			So(counts, ShouldResemble, []int{50, 50, 50})
		})

		Convey("Then the first row should be the classic setosa sample", func() {
			So(d.X[0], ShouldResemble, []float64{5.1, 3.5, 1.4, 0.2})
			So(d.Y[0], ShouldEqual, 0)
		})

		Convey("When exported as a frame", func() {
			var buf bytes.Buffer
			So(d.Frame().WriteCSV(&buf), ShouldBeNil)
			back, err := table.ReadFrame(&buf)

			Convey("Then it should read back without the label column", func() {
				So(err, ShouldBeNil)
				So(back.Columns, ShouldResemble, types.RequiredColumns())
				So(back.Len(), ShouldEqual, 150)
			})
		})
	})
}
