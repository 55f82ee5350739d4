// Package images validates, resizes and stores uploaded pictures, and
// cleans up the files a record no longer references.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"path"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/metrics"
)

// URLPrefix is where stored images are served from.
const URLPrefix = "/images"

const (
	// MaxUploadBytes caps a whole multipart request body.
	MaxUploadBytes = 15 << 20
	// MaxPixels bounds width*height of a single upload before it is decoded.
	MaxPixels = 25_000_000
)

// Field configures one multipart upload field.
type Field struct {
	Name     string
	MaxCount int
	Width    int
	Height   int
	Quality  int
	// Exact requires exactly MaxCount files whenever the field is sent.
	Exact bool
	// Required, when set, is the message reported by CheckRequired if the
	// field carries no file.
	Required string
}

// Storage persists encoded images under a folder.
type Storage interface {
	Save(ctx context.Context, folder, filename string, data []byte) error
	Remove(ctx context.Context, folder, filename string) error
}

// Pipeline handles the image fields of one resource.
type Pipeline struct {
	folder    string
	fields    []Field
	storage   Storage
	log       *zap.Logger
	protected map[string]bool
	now       func() time.Time
}

func NewPipeline(folder string, storage Storage, log *zap.Logger, fields ...Field) *Pipeline {
	return &Pipeline{
		folder:    folder,
		fields:    fields,
		storage:   storage,
		log:       log,
		protected: map[string]bool{},
		now:       time.Now,
	}
}

// Protect marks stored paths (such as a default avatar) that cleanup must
// never remove.
func (p *Pipeline) Protect(paths ...string) *Pipeline {
	for _, s := range paths {
		p.protected[s] = true
	}
	return p
}

func (p *Pipeline) Folder() string { return p.folder }

func (p *Pipeline) Fields() []Field { return p.fields }

func (p *Pipeline) field(name string) (Field, bool) {
	for _, f := range p.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Image is one processed upload waiting to be stored.
type Image struct {
	Field    string
	Filename string
	Path     string
	data     []byte
}

// Batch holds the processed images of one request.
type Batch struct {
	pipeline *Pipeline
	images   map[string][]Image
	saved    []Image
}

// Process checks every file of the form before decoding any of them, then
// resizes and encodes each accepted file in memory. Nothing is stored.
// owner names the files: the record id on update, the caller's id on create.
func (p *Pipeline) Process(form *multipart.Form, owner string) (*Batch, error) {
	batch := &Batch{pipeline: p, images: map[string][]Image{}}
	if form == nil || len(form.File) == 0 {
		return batch, nil
	}

	for name, files := range form.File {
		f, ok := p.field(name)
		if !ok {
			return nil, apperror.UnexpectedUpload(name)
		}
		if len(files) > f.MaxCount {
			return nil, apperror.UploadCount(name, f.MaxCount)
		}
		if f.Exact && len(files) != f.MaxCount {
			return nil, apperror.FieldInvalid(name, fmt.Sprintf("Exactly %d images are required for %s", f.MaxCount, name))
		}
		for _, fh := range files {
			if err := checkType(fh); err != nil {
				return nil, err
			}
			if err := checkDimensions(fh); err != nil {
				return nil, err
			}
		}
	}

	stamp := p.now().UnixMilli()
	for _, f := range p.fields {
		files := form.File[f.Name]
		for i, fh := range files {
			data, err := encode(fh, f)
			if err != nil {
				return nil, err
			}
			filename := fmt.Sprintf("%s-%s-%s-%d-%d.jpeg", p.folder, f.Name, owner, stamp, i)
			batch.images[f.Name] = append(batch.images[f.Name], Image{
				Field:    f.Name,
				Filename: filename,
				Path:     path.Join(URLPrefix, p.folder, filename),
				data:     data,
			})
		}
	}
	return batch, nil
}

func checkType(fh *multipart.FileHeader) error {
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image") {
		return apperror.UploadType()
	}
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	sniffed, err := mimetype.DetectReader(file)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(sniffed.String(), "image/") {
		return apperror.UploadType()
	}
	return nil
}

// checkDimensions reads only the image header, so oversized images are
// refused before any pixel buffer is allocated.
func checkDimensions(fh *multipart.FileHeader) error {
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return apperror.UploadType().Wrap(err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return apperror.ImageTooLarge(cfg.Width, cfg.Height)
	}
	return nil
}

func encode(fh *multipart.FileHeader, f Field) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return nil, apperror.UploadType().Wrap(err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Cover(src, f.Width, f.Height), &jpeg.Options{Quality: f.Quality}); err != nil {
		return nil, fmt.Errorf("encode %s: %w", fh.Filename, err)
	}
	return buf.Bytes(), nil
}

// Cover scales src to fill width x height, cropping the overflow around
// the centre.
func Cover(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	crop := b
	if sw*height > sh*width {
		cw := sh * width / height
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else if sw*height < sh*width {
		ch := sw * height / width
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// CheckRequired reports every required field that received no file.
func (b *Batch) CheckRequired() error {
	missing := map[string][]string{}
	for _, f := range b.pipeline.fields {
		if f.Required != "" && !b.Uploaded(f.Name) {
			missing[f.Name] = []string{f.Required}
		}
	}
	if len(missing) > 0 {
		return apperror.Validation(missing)
	}
	return nil
}

// Empty reports whether no file was uploaded.
func (b *Batch) Empty() bool { return len(b.images) == 0 }

// Uploaded reports whether the field carried files in this request.
func (b *Batch) Uploaded(field string) bool { return len(b.images[field]) > 0 }

// Values returns the stored paths per uploaded field: a string for
// single-file fields, a list otherwise.
func (b *Batch) Values() bson.M {
	values := bson.M{}
	for name, imgs := range b.images {
		f, _ := b.pipeline.field(name)
		if f.MaxCount == 1 {
			values[name] = imgs[0].Path
			continue
		}
		paths := make(bson.A, 0, len(imgs))
		for _, img := range imgs {
			paths = append(paths, img.Path)
		}
		values[name] = paths
	}
	return values
}

// Save stores every image. Files written before a failure stay recorded
// so Discard can remove them.
func (b *Batch) Save(ctx context.Context) error {
	for _, f := range b.pipeline.fields {
		for _, img := range b.images[f.Name] {
			if err := b.pipeline.storage.Save(ctx, b.pipeline.folder, img.Filename, img.data); err != nil {
				return fmt.Errorf("save image %s: %w", img.Filename, err)
			}
			metrics.ObserveImage(b.pipeline.folder, "save")
			b.saved = append(b.saved, img)
		}
	}
	return nil
}

// Discard removes whatever Save already wrote.
func (b *Batch) Discard(ctx context.Context) {
	for _, img := range b.saved {
		b.pipeline.remove(ctx, img.Path)
	}
	b.saved = nil
}

// RemoveReplaced deletes the previous files of every field uploaded in
// this batch whose stored value changed.
func (b *Batch) RemoveReplaced(ctx context.Context, previous, updated bson.M) {
	for name := range b.images {
		old := Paths(previous[name])
		if len(old) == 0 || equalPaths(old, Paths(updated[name])) {
			continue
		}
		for _, p := range old {
			b.pipeline.remove(ctx, p)
		}
	}
}

// RemoveAll deletes every image a record references. Failures are logged.
func (p *Pipeline) RemoveAll(ctx context.Context, doc bson.M) {
	for _, f := range p.fields {
		for _, s := range Paths(doc[f.Name]) {
			p.remove(ctx, s)
		}
	}
}

func (p *Pipeline) remove(ctx context.Context, stored string) {
	if stored == "" || p.protected[stored] {
		return
	}
	filename := path.Base(stored)
	if err := p.storage.Remove(ctx, p.folder, filename); err != nil {
		p.log.Warn("failed to delete image",
			zap.String("folder", p.folder),
			zap.String("file", filename),
			zap.Error(err))
		return
	}
	metrics.ObserveImage(p.folder, "remove")
}

// Paths normalizes a stored image value to a list of paths.
func Paths(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case bson.A:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []interface{}:
		return Paths(bson.A(val))
	}
	return nil
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
