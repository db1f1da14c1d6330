// Copyright 2025 Hollowbrook Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage defines the object store abstraction the pipeline runs
// against. Source documents live under a source prefix; successfully
// indexed documents are promoted to a processed prefix via a
// copy-then-delete sequence so a crash between the two steps never loses
// a document.
//
// The minio subpackage implements ObjectStore against any S3-compatible
// endpoint; the memory subpackage provides an in-process implementation
// for tests.
package storage
